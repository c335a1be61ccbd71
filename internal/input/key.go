package input

// Code identifies a key independently of the character it produces.
type Code int

const (
	CodeOther Code = iota
	CodeChar
	CodeEnter
	CodeTab
	CodeEscape
	CodeBackspace
	CodeDelete
	CodeArrowLeft
	CodeArrowRight
	CodeArrowUp
	CodeArrowDown
	CodeHome
	CodeEnd
	CodePageUp
	CodePageDown
)

var codeNames = map[Code]string{
	CodeOther:      "other",
	CodeChar:       "char",
	CodeEnter:      "enter",
	CodeTab:        "tab",
	CodeEscape:     "escape",
	CodeBackspace:  "backspace",
	CodeDelete:     "delete",
	CodeArrowLeft:  "left",
	CodeArrowRight: "right",
	CodeArrowUp:    "up",
	CodeArrowDown:  "down",
	CodeHome:       "home",
	CodeEnd:        "end",
	CodePageUp:     "pgup",
	CodePageDown:   "pgdown",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "other"
}

// ParseCode maps a key name to its Code. Unknown names yield CodeOther.
func ParseCode(name string) Code {
	for c, s := range codeNames {
		if s == name {
			return c
		}
	}
	return CodeOther
}

// Key is one keyboard event.
type Key struct {
	Code  Code
	Rune  rune
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool
}

// Char builds a plain character key.
func Char(r rune) Key {
	return Key{Code: CodeChar, Rune: r}
}

func (k Key) hasCommandModifier() bool {
	return k.Ctrl || k.Alt || k.Meta
}

func (k Key) isNavigation() bool {
	switch k.Code {
	case CodeArrowLeft, CodeArrowRight, CodeArrowUp, CodeArrowDown,
		CodeHome, CodeEnd, CodePageUp, CodePageDown, CodeDelete:
		return true
	}
	return false
}
