// Package texts holds the user-facing message catalog.
package texts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Announcement texts are shown in the room.
type Announcement struct {
	Empty       string `yaml:"empty"`
	Open        string `yaml:"open"`
	Missing     string `yaml:"missing"`
	Started     string `yaml:"started"`
	Canceled    string `yaml:"canceled"`
	Expired     string `yaml:"expired"`
	Closed      string `yaml:"closed"`
	Participant string `yaml:"participant"`
}

// Private texts are sent to a single participant.
type Private struct {
	Joined        string `yaml:"joined"`
	JoinedCreator string `yaml:"joined_creator"`
	JoinedMember  string `yaml:"joined_member"`
	Left          string `yaml:"left"`
	Match         string `yaml:"match"`
	Revoked       string `yaml:"revoked"`
	CalledOff     string `yaml:"called_off"`
}

// Notice texts answer the actor of an action.
type Notice struct {
	Created           string `yaml:"created"`
	AlreadyActive     string `yaml:"already_active"`
	NotFound          string `yaml:"not_found"`
	Joined            string `yaml:"joined"`
	AlreadyJoined     string `yaml:"already_joined"`
	Full              string `yaml:"full"`
	Left              string `yaml:"left"`
	NotParticipant    string `yaml:"not_participant"`
	AlreadyStarted    string `yaml:"already_started"`
	OnlyCreatorStart  string `yaml:"only_creator_start"`
	OnlyCreatorCancel string `yaml:"only_creator_cancel"`
	BelowMinimum      string `yaml:"below_minimum"`
	OddCount          string `yaml:"odd_count"`
	Unreachable       string `yaml:"unreachable"`
	Undelivered       string `yaml:"undelivered"`
	DraftingFailed    string `yaml:"drafting_failed"`
	Started           string `yaml:"started"`
	Canceled          string `yaml:"canceled"`
	RevokeDisabled    string `yaml:"revoke_disabled"`
	Renamed           string `yaml:"renamed"`
	Migrated          string `yaml:"migrated"`
	DestinationBusy   string `yaml:"destination_busy"`
	NotExpired        string `yaml:"not_expired"`
	ChannelOnly       string `yaml:"channel_only"`
	RateLimited       string `yaml:"rate_limited"`
	Usage             string `yaml:"usage"`
	Failed            string `yaml:"failed"`
}

// Controls are button labels.
type Controls struct {
	Join   string `yaml:"join"`
	Leave  string `yaml:"leave"`
	Start  string `yaml:"start"`
	Cancel string `yaml:"cancel"`
	Rename string `yaml:"rename"`
}

// Catalog is the full set of texts.
type Catalog struct {
	Announcement Announcement `yaml:"announcement"`
	Private      Private      `yaml:"private"`
	Notice       Notice       `yaml:"notice"`
	Controls     Controls     `yaml:"controls"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		panic("texts: embedded catalog is invalid: " + err.Error())
	}
	return &c
}

// Load returns the embedded catalog overlaid with the YAML file at path.
// Keys absent from the file keep their default text. An empty path returns
// the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading texts file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing texts file %s: %w", path, err)
	}
	return c, nil
}

// Fill replaces {key} placeholders in tmpl. kv alternates keys and values.
func Fill(tmpl string, kv ...string) string {
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ParticipantList renders names as a numbered list.
func (c *Catalog) ParticipantList(names []string) string {
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = Fill(c.Announcement.Participant, "index", fmt.Sprint(i+1), "name", name)
	}
	return strings.Join(lines, "\n")
}
