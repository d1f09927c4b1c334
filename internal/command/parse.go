// Package command parses inbound bot commands and answers them with
// messages, mapping each command onto a store or resolver operation.
package command

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Command names, as typed after the slash.
const (
	Help            = "help"
	Start           = "start"
	Auguri          = "auguri"
	Buongiornissimo = "buongiornissimo"
	Buonpomeriggio  = "buonpomeriggio"
	Buonanotte      = "buonanotte"
	BuonNatale      = "buon-natale"
	Caffeee         = "caffeee"
	Compleanno      = "compleanno"
	PuliziaKontatti = "pulizia-kontatti"
	Release         = "release"
)

// Parse errors.
var (
	// ErrNotCommand means the text does not start with a slash command.
	ErrNotCommand = errors.New("not a command")
	// ErrOtherBot means the command is addressed to a different bot.
	ErrOtherBot = errors.New("command addressed to another bot")
	// ErrUnknownCommand means the command name is not recognized.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage means the command arguments are malformed.
	ErrUsage = errors.New("invalid command arguments")
)

// UsageError reports malformed arguments together with the correct usage.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return ErrUsage.Error() + ": " + e.Usage
}

// Is makes errors.Is(err, ErrUsage) match.
func (e *UsageError) Is(target error) bool {
	return target == ErrUsage
}

// Command is a parsed inbound command.
type Command struct {
	Name string
	Args []string
}

type spec struct {
	name        string
	usage       string
	description string
	minArgs     int
}

var specs = []spec{
	{name: Auguri, usage: "/auguri <nome>", description: "ottieni un'immagine di buon compleanno", minArgs: 1},
	{name: Buongiornissimo, usage: "/buongiornissimo", description: "ottieni un'immagine del buongiorno"},
	{name: Buonpomeriggio, usage: "/buonpomeriggio", description: "ottieni un'immagine del buon pomeriggio"},
	{name: Buonanotte, usage: "/buonanotte", description: "ottieni un'immagine della buona notte"},
	{name: BuonNatale, usage: "/buon-natale", description: "ottieni un'immagine del buon natale"},
	{name: Caffeee, usage: "/caffeee", description: "iscriviti ai messaggi automatici"},
	{name: Compleanno, usage: "/compleanno <nome> <data>", description: "imposta un compleanno (data AAAA-MM-GG oppure GG/MM/AAAA)", minArgs: 2},
	{name: PuliziaKontatti, usage: "/pulizia-kontatti", description: "disinscriviti dai messaggi automatici"},
	{name: Release, usage: "/release", description: "ottieni la release attuale"},
	{name: Help, usage: "/help", description: "visualizza l'aiuto"},
	{name: Start, usage: "/start", description: "inizializza bot"},
}

func lookup(name string) (spec, bool) {
	for _, s := range specs {
		if s.name == name {
			return s, true
		}
	}
	return spec{}, false
}

// Parse reads a command from text. botName, when set, rejects commands
// suffixed with another bot's name ("/help@OtherBot").
func Parse(text, botName string) (Command, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) == 1 {
		return Command{}, ErrNotCommand
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if botName != "" && !strings.EqualFold(target, strings.TrimPrefix(botName, "@")) {
			return Command{}, ErrOtherBot
		}
	}
	s, ok := lookup(name)
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	args := fields[1:]
	if len(args) < s.minArgs {
		return Command{}, &UsageError{Usage: s.usage}
	}
	return Command{Name: name, Args: args}, nil
}

// HelpText lists every command with its description.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Questi comandi sono disponibili:")
	for _, s := range specs {
		b.WriteString("\n")
		b.WriteString(s.usage)
		b.WriteString(" - ")
		b.WriteString(s.description)
	}
	return b.String()
}

// Usage returns the usage line of the named command.
func Usage(name string) string {
	s, _ := lookup(name)
	return s.usage
}

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

// ParseDate accepts YYYY-MM-DD and DD/MM/YYYY.
func ParseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q", raw)
}

// BirthdayArgs splits compleanno arguments into name and date. The date is
// the last argument; everything before it is the name.
func BirthdayArgs(args []string) (string, time.Time, error) {
	if len(args) < 2 {
		return "", time.Time{}, &UsageError{Usage: Usage(Compleanno)}
	}
	date, err := ParseDate(args[len(args)-1])
	if err != nil {
		return "", time.Time{}, &UsageError{Usage: Usage(Compleanno)}
	}
	return strings.Join(args[:len(args)-1], " "), date, nil
}
