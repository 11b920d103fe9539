package shell

import "unicode"

// Tokenize splits a command line on whitespace. A token starting with a
// double quote runs to the next double quote, or to the end of the line when
// unterminated, and may contain spaces. At most MaxArgs tokens are returned.
func Tokenize(line string) []string {
	var args []string

	rs := []rune(line)
	i := 0
	for i < len(rs) && len(args) < MaxArgs {
		for i < len(rs) && unicode.IsSpace(rs[i]) {
			i++
		}
		if i == len(rs) {
			break
		}

		if rs[i] == '"' {
			i++
			start := i
			for i < len(rs) && rs[i] != '"' {
				i++
			}
			args = append(args, string(rs[start:i]))
			if i < len(rs) {
				i++
			}
			continue
		}

		start := i
		for i < len(rs) && !unicode.IsSpace(rs[i]) {
			i++
		}
		args = append(args, string(rs[start:i]))
	}
	return args
}
