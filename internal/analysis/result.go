// Package analysis defines the structured output produced for one screenshot.
package analysis

// Type tags which entity a screenshot was classified as.
type Type string

const (
	TypeCharacter Type = "character"
	TypeWeapon    Type = "weapon"
	TypeEcho      Type = "echo"
	TypeUnknown   Type = "unknown"
)

// Level and rank bounds accepted from recognized text.
const (
	MinLevel = 1
	MaxLevel = 90
	MinRank  = 1
	MaxRank  = 5
)

// Result is a tagged union: exactly the sub-struct matching Type is set.
type Result struct {
	Type      Type             `json:"type"`
	Character *CharacterResult `json:"character,omitempty"`
	Weapon    *WeaponResult    `json:"weapon,omitempty"`
	Echo      *EchoResult      `json:"echo,omitempty"`
}

// CharacterResult is a resolved character sheet.
type CharacterResult struct {
	Name    string `json:"name"`
	Level   *int   `json:"level,omitempty"`
	Element string `json:"element,omitempty"` // lower case, e.g. "havoc"
	UID     string `json:"uid,omitempty"`
}

// WeaponResult is a resolved weapon sheet.
type WeaponResult struct {
	Name       string `json:"name"`
	WeaponType string `json:"weaponType"`
	Level      *int   `json:"level,omitempty"`
	Rank       *int   `json:"rank,omitempty"`
}

// EchoResult is a resolved echo sheet. Any field other than Name may be absent.
type EchoResult struct {
	Name          string         `json:"name"`
	Cost          *int           `json:"cost,omitempty"`
	Level         *int           `json:"level,omitempty"`
	MainStat      string         `json:"mainStat,omitempty"`
	MainStatValue *float64       `json:"mainStatValue,omitempty"`
	DefaultStat   *StatValue     `json:"defaultStat,omitempty"`
	SubStats      []SubstatEntry `json:"subStats"`
}

// StatValue is a stat whose value is derived from cost and level rather than read.
type StatValue struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// SubstatEntry is one substat. Value is always a member of the stat's roll table.
type SubstatEntry struct {
	Type         string  `json:"type"`
	Value        float64 `json:"value"`
	IsPercentage bool    `json:"isPercentage"`
}

// Unknown is the result for screenshots that could not be classified.
func Unknown() Result {
	return Result{Type: TypeUnknown}
}

// NewCharacter wraps a character sheet.
func NewCharacter(c CharacterResult) Result {
	return Result{Type: TypeCharacter, Character: &c}
}

// NewWeapon wraps a weapon sheet.
func NewWeapon(w WeaponResult) Result {
	return Result{Type: TypeWeapon, Weapon: &w}
}

// NewEcho wraps an echo sheet.
func NewEcho(e EchoResult) Result {
	if e.SubStats == nil {
		e.SubStats = []SubstatEntry{}
	}
	return Result{Type: TypeEcho, Echo: &e}
}

// ValidLevel returns level when it lies within [MinLevel, MaxLevel], else nil.
func ValidLevel(level int) *int {
	if level < MinLevel || level > MaxLevel {
		return nil
	}
	return &level
}

// ValidRank returns rank when it lies within [MinRank, MaxRank], else nil.
func ValidRank(rank int) *int {
	if rank < MinRank || rank > MaxRank {
		return nil
	}
	return &rank
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int {
	return &v
}
