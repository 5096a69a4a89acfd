package resource

import "strings"

// reservedNames cannot be used as file names on some platforms. Units with
// such a simple name are stored with a leading underscore.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// IsReserved reports whether the simple name of a unit is a reserved token
func IsReserved(name string) bool {
	_, ok := reservedNames[strings.ToUpper(simpleName(name))]
	return ok
}

// reservedAlternative returns the name under which a reserved unit is
// stored: com.example.CON becomes com.example._CON
func reservedAlternative(name string) (string, bool) {
	if !IsReserved(name) {
		return "", false
	}
	i := strings.LastIndexByte(name, '.')
	return name[:i+1] + "_" + name[i+1:], true
}

func simpleName(name string) string {
	return name[strings.LastIndexByte(name, '.')+1:]
}
