package command

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		bot     string
		want    Command
		wantErr error
	}{
		{name: "plain", text: "/help", want: Command{Name: Help, Args: []string{}}},
		{name: "uppercase", text: "/CAFFEEE", want: Command{Name: Caffeee, Args: []string{}}},
		{name: "with args", text: "/auguri  Anna  Maria ", want: Command{Name: Auguri, Args: []string{"Anna", "Maria"}}},
		{name: "own bot", text: "/help@BuongiornoBot", bot: "@buongiornobot", want: Command{Name: Help, Args: []string{}}},
		{name: "suffix without bot name", text: "/help@AnyBot", want: Command{Name: Help, Args: []string{}}},
		{name: "other bot", text: "/help@OtherBot", bot: "BuongiornoBot", wantErr: ErrOtherBot},
		{name: "no slash", text: "buongiorno", wantErr: ErrNotCommand},
		{name: "bare slash", text: "/", wantErr: ErrNotCommand},
		{name: "empty", text: "   ", wantErr: ErrNotCommand},
		{name: "unknown", text: "/espresso", wantErr: ErrUnknownCommand},
		{name: "missing args", text: "/compleanno Anna", wantErr: ErrUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text, tt.bot)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUsageErrorCarriesUsage(t *testing.T) {
	_, err := Parse("/auguri", "")
	var ue *UsageError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "/auguri <nome>", ue.Usage)
}

func TestHelpTextListsEveryCommand(t *testing.T) {
	text := HelpText()
	assert.True(t, strings.HasPrefix(text, "Questi comandi sono disponibili:"))
	for _, name := range []string{Auguri, Buongiornissimo, Buonpomeriggio, Buonanotte, BuonNatale, Caffeee, Compleanno, PuliziaKontatti, Release, Help, Start} {
		assert.Contains(t, text, "/"+name, name)
	}
	assert.Len(t, strings.Split(text, "\n"), len(specs)+1)
}

func TestParseDate(t *testing.T) {
	want := time.Date(1990, time.May, 30, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"1990-05-30", "30/05/1990"} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), raw)
	}
	for _, raw := range []string{"30-05-1990", "1990/05/30", "2023-02-29", "domani"} {
		_, err := ParseDate(raw)
		assert.Error(t, err, raw)
	}
}

func TestBirthdayArgs(t *testing.T) {
	name, date, err := BirthdayArgs([]string{"Zia", "Pina", "29/02/1964"})
	require.NoError(t, err)
	assert.Equal(t, "Zia Pina", name)
	assert.Equal(t, time.February, date.Month())
	assert.Equal(t, 29, date.Day())

	_, _, err = BirthdayArgs([]string{"Anna"})
	assert.ErrorIs(t, err, ErrUsage)

	_, _, err = BirthdayArgs([]string{"Anna", "ieri"})
	var ue *UsageError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Usage(Compleanno), ue.Usage)
}
