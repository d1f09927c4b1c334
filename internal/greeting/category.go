// Package greeting defines greeting categories, image references and the
// error taxonomy shared by providers, the resolver and the command layer.
package greeting

import (
	"fmt"
	"strings"
)

// Category is the enumerated greeting type used as the resolver request key.
type Category string

// Daily greetings.
const (
	BuonGiorno        Category = "buongiorno"
	BuonGiornoWeekday Category = "buongiorno-weekday"
	BuonPranzo        Category = "buon-pranzo"
	BuonPomeriggio    Category = "buon-pomeriggio"
	BuonaSerata       Category = "buona-serata"
	BuonaCena         Category = "buona-cena"
	BuonaNotte        Category = "buonanotte"
	Compleanno        Category = "compleanno"
)

// Calendar greetings.
const (
	Capodanno            Category = "capodanno"
	Epifania             Category = "epifania"
	SanValentino         Category = "san-valentino"
	FestaDellaDonna      Category = "festa-della-donna"
	Pasqua               Category = "pasqua"
	Pasquetta            Category = "pasquetta"
	Liberazione          Category = "liberazione"
	FestaDelLavoro       Category = "festa-del-lavoro"
	FestaDellaRepubblica Category = "festa-della-repubblica"
	Ferragosto           Category = "ferragosto"
	Halloween            Category = "halloween"
	Ognissanti           Category = "ognissanti"
	Defunti              Category = "defunti"
	Immacolata           Category = "immacolata"
	VigiliaDiNatale      Category = "vigilia-di-natale"
	Natale               Category = "natale"
	SantoStefano         Category = "santo-stefano"
	SanSilvestro         Category = "san-silvestro"
)

var allCategories = []Category{
	BuonGiorno,
	BuonGiornoWeekday,
	BuonPranzo,
	BuonPomeriggio,
	BuonaSerata,
	BuonaCena,
	BuonaNotte,
	Compleanno,
	Capodanno,
	Epifania,
	SanValentino,
	FestaDellaDonna,
	Pasqua,
	Pasquetta,
	Liberazione,
	FestaDelLavoro,
	FestaDellaRepubblica,
	Ferragosto,
	Halloween,
	Ognissanti,
	Defunti,
	Immacolata,
	VigiliaDiNatale,
	Natale,
	SantoStefano,
	SanSilvestro,
}

// All returns every known category.
func All() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Parse converts a tag into a Category.
func Parse(raw string) (Category, error) {
	tag := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range allCategories {
		if c == tag {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown greeting category %q", raw)
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// IsHoliday reports whether the category belongs to the holiday calendar.
func (c Category) IsHoliday() bool {
	switch c {
	case BuonGiorno, BuonGiornoWeekday, BuonPranzo, BuonPomeriggio,
		BuonaSerata, BuonaCena, BuonaNotte, Compleanno:
		return false
	}
	return c != ""
}

// Baseline returns the category to retry with when no provider can serve c.
// Holidays and the weekday variant fall back to the plain good morning;
// other daily greetings and birthdays have none.
func (c Category) Baseline() (Category, bool) {
	if c == BuonGiornoWeekday || c.IsHoliday() {
		return BuonGiorno, true
	}
	return "", false
}
