package regions

// Region names used by the entity classifier.
const (
	CharacterPage = "characterPage"
	WeaponPage    = "weaponPage"
	EchoPage      = "echoPage"
	UID           = "uid"
)

var defaultCatalog = MustCatalog(
	Region{Name: CharacterPage, Top: 0.04, Left: 0, Width: 0.3, Height: 0.25, Priority: 0},
	Region{Name: WeaponPage, Top: 0, Left: 0, Width: 0.35, Height: 0.37, Priority: 1},
	Region{Name: EchoPage, Top: 0.12, Left: 0.7, Width: 0.27, Height: 0.37, Priority: 2},
	Region{Name: UID, Top: 0.975, Left: 0.915, Width: 0.07, Height: 0.025, Priority: 3, Whitelist: "0123456789"},
)

// DefaultCatalog returns the catalog for full-screen in-game screenshots.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
