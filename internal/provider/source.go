package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
)

// Kind enumerates the fixed set of content sources.
type Kind int

// Known sources.
const (
	IlMondoDiGrazia Kind = iota
	BuongiornissimoCaffe
	BuongiornoImmagini
	Augurando
	TiCondivido
)

// Kinds returns every source kind in declaration order.
func Kinds() []Kind {
	return []Kind{IlMondoDiGrazia, BuongiornissimoCaffe, BuongiornoImmagini, Augurando, TiCondivido}
}

// String returns the source name used in logs and metrics.
func (k Kind) String() string {
	if s, ok := sources[k]; ok {
		return s.Name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind looks a source up by name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if sources[k].Name == strings.ToLower(strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown provider %q", name)
}

// Source describes where a site keeps its greeting pages and which part of
// the page holds the images.
type Source struct {
	Name            string
	BaseURL         string
	ContentSelector string
	Routes          map[greeting.Category]string
	// WeekdayRoute is a path template taking the Italian weekday name.
	// Empty means the weekday greeting is not offered.
	WeekdayRoute string
}

// PageURL returns the page for category on the given day.
func (s Source) PageURL(category greeting.Category, now time.Time) (string, bool) {
	if category == greeting.BuonGiornoWeekday {
		if s.WeekdayRoute == "" {
			return "", false
		}
		return s.join(fmt.Sprintf(s.WeekdayRoute, greeting.WeekdayName(now.Weekday()))), true
	}
	path, ok := s.Routes[category]
	if !ok {
		return "", false
	}
	return s.join(path), true
}

// Supports reports whether the source has a page for category.
func (s Source) Supports(category greeting.Category) bool {
	_, ok := s.PageURL(category, time.Time{})
	return ok
}

// Domain returns the registrable host images must belong to.
func (s Source) Domain() string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// WithBaseURL returns a copy of the source served from base, used for mirrors
// and local test servers.
func (s Source) WithBaseURL(base string) Source {
	s.BaseURL = strings.TrimRight(base, "/")
	return s
}

func (s Source) join(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// SourceOf returns the built-in description for kind.
func SourceOf(kind Kind) (Source, bool) {
	s, ok := sources[kind]
	if !ok {
		return Source{}, false
	}
	routes := make(map[greeting.Category]string, len(s.Routes))
	for k, v := range s.Routes {
		routes[k] = v
	}
	s.Routes = routes
	return s, true
}

var sources = map[Kind]Source{
	IlMondoDiGrazia: {
		Name:            "ilmondodigrazia",
		BaseURL:         "https://ilmondodigrazia.com",
		ContentSelector: "div.entry-content",
		WeekdayRoute:    "/buongiorno/buongiorno-%s",
		Routes: map[greeting.Category]string{
			greeting.Compleanno:           "/compleanno",
			greeting.BuonGiorno:           "/buongiorno",
			greeting.BuonPomeriggio:       "/buon-pomeriggio",
			greeting.BuonaNotte:           "/buonanotte",
			greeting.FestaDellaRepubblica: "/festa/festa-della-repubblica",
			greeting.Ferragosto:           "/buon-ferragosto",
			greeting.Ognissanti:           "/tutti-i-santi-immagini-festa-di-ognissanti",
			greeting.Defunti:              "/commemorazione-dei-defunti-2-novembre",
			greeting.Halloween:            "/halloween-31-ottobre-immagini-buongiorno",
			greeting.Immacolata:           "/immacolata-concezione-8-dicembre-buongiorno",
			greeting.VigiliaDiNatale:      "/buongiorno/buongiorno-vigilia-di-natale-per-il-24-dicembre",
			greeting.Natale:               "/frasi-di-buon-natale-immagini-da-condividere",
		},
	},
	BuongiornissimoCaffe: {
		Name:            "buongiornissimocaffe",
		BaseURL:         "https://www.buongiornissimocaffe.it",
		ContentSelector: "div.entry-content",
		WeekdayRoute:    "/buon-%s",
		Routes: map[greeting.Category]string{
			greeting.BuonGiorno:      "/buongiorno",
			greeting.BuonPranzo:      "/buon-pranzo",
			greeting.BuonPomeriggio:  "/buon-pomeriggio",
			greeting.BuonaSerata:     "/buona-serata",
			greeting.BuonaCena:       "/buona-cena",
			greeting.BuonaNotte:      "/buonanotte",
			greeting.Capodanno:       "/buon-anno",
			greeting.Pasqua:          "/buona-pasqua",
			greeting.Natale:          "/buon-natale",
			greeting.SanSilvestro:    "/buon-san-silvestro",
			greeting.SanValentino:    "/buon-san-valentino",
			greeting.FestaDellaDonna: "/festa-della-donna",
		},
	},
	BuongiornoImmagini: {
		Name:            "buongiornoimmagini",
		BaseURL:         "https://www.buongiornoimmagini.it",
		ContentSelector: "div.entry-content",
		WeekdayRoute:    "/buongiorno-%s",
		Routes: map[greeting.Category]string{
			greeting.BuonGiorno:      "/buongiorno",
			greeting.BuonPomeriggio:  "/buon-pomeriggio",
			greeting.BuonaSerata:     "/buona-serata",
			greeting.BuonaNotte:      "/buonanotte",
			greeting.Epifania:        "/buona-epifania",
			greeting.Pasquetta:       "/buona-pasquetta",
			greeting.Liberazione:     "/buon-25-aprile",
			greeting.FestaDelLavoro:  "/buon-primo-maggio",
			greeting.SantoStefano:    "/buon-santo-stefano",
			greeting.VigiliaDiNatale: "/buona-vigilia-di-natale",
		},
	},
	Augurando: {
		Name:            "augurando",
		BaseURL:         "https://www.augurando.it",
		ContentSelector: "article .entry-content",
		Routes: map[greeting.Category]string{
			greeting.Compleanno:   "/buon-compleanno",
			greeting.BuonGiorno:   "/immagini-buongiorno",
			greeting.BuonaNotte:   "/immagini-buonanotte",
			greeting.Natale:       "/auguri-di-buon-natale",
			greeting.Pasqua:       "/auguri-di-buona-pasqua",
			greeting.Capodanno:    "/auguri-di-buon-anno",
			greeting.SanValentino: "/auguri-san-valentino",
		},
	},
	TiCondivido: {
		Name:            "ticondivido",
		BaseURL:         "https://www.ticondivido.it",
		ContentSelector: "div.post-content",
		WeekdayRoute:    "/immagini/buongiorno/%s",
		Routes: map[greeting.Category]string{
			greeting.Compleanno:     "/immagini/buon-compleanno",
			greeting.BuonGiorno:     "/immagini/buongiorno",
			greeting.BuonPranzo:     "/immagini/buon-pranzo",
			greeting.BuonPomeriggio: "/immagini/buon-pomeriggio",
			greeting.BuonaCena:      "/immagini/buona-cena",
			greeting.BuonaNotte:     "/immagini/buonanotte",
			greeting.Ferragosto:     "/immagini/buon-ferragosto",
			greeting.Halloween:      "/immagini/halloween",
		},
	},
}
