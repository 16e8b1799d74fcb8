// Package resource loads the static gamification catalog: quest
// definitions, skill trees and milestones. Each table is read from
// <name>.toml or <name>.json; the built-in catalog is embedded.
package resource

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/framecraft/engagement/game/milestone"
	"github.com/framecraft/engagement/game/quest"
	"github.com/framecraft/engagement/game/skill"
)

//go:embed defaults/*.toml
var defaultFS embed.FS

// Catalog is the validated, read-only rule data shared by all users.
type Catalog struct {
	Source     string
	Quests     *quest.Catalog
	Skills     *skill.Forest
	Milestones *milestone.Detector
}

// Loader reads catalog tables from a file system.
type Loader struct {
	fsys   fs.FS
	source string

	quests     []*quest.Definition
	skills     []*skill.Skill
	milestones []*milestone.Milestone
}

// NewLoader returns a loader for dir. An empty dir selects the embedded
// default catalog.
func NewLoader(dir string) *Loader {
	if dir == "" {
		sub, _ := fs.Sub(defaultFS, "defaults")
		return &Loader{fsys: sub, source: "builtin"}
	}
	return &Loader{fsys: os.DirFS(dir), source: dir}
}

// NewFSLoader returns a loader over an arbitrary file system.
func NewFSLoader(fsys fs.FS, source string) *Loader {
	return &Loader{fsys: fsys, source: source}
}

// Default loads the embedded catalog. It panics if the embedded data is
// invalid, which only a broken build can cause.
func Default() *Catalog {
	c, err := NewLoader("").Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads every table and validates the result.
func (l *Loader) Load() (*Catalog, error) {
	loaders := []func() error{
		l.loadQuests,
		l.loadSkills,
		l.loadMilestones,
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return l.build()
}

func (l *Loader) loadQuests() (err error) {
	l.quests, err = loadTable[quest.Definition](l.fsys, "quests", "quest")
	return err
}

func (l *Loader) loadSkills() (err error) {
	l.skills, err = loadTable[skill.Skill](l.fsys, "skills", "skill")
	return err
}

func (l *Loader) loadMilestones() (err error) {
	l.milestones, err = loadTable[milestone.Milestone](l.fsys, "milestones", "milestone")
	return err
}

func (l *Loader) build() (*Catalog, error) {
	qc, err := quest.NewCatalog(l.quests)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	for _, d := range qc.All() {
		for _, o := range d.Objectives {
			if o.Action != "" && !milestone.Category(o.Action).Counter() {
				return nil, fmt.Errorf("resource: quest %q objective %q: unknown action %q", d.ID, o.ID, o.Action)
			}
		}
	}
	forest, err := skill.NewForest(l.skills)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	det, err := milestone.NewDetector(l.milestones)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	return &Catalog{Source: l.source, Quests: qc, Skills: forest, Milestones: det}, nil
}

// loadTable reads name.toml, whose rows are an array of tables under key,
// or else name.json, a plain array.
func loadTable[T any](fsys fs.FS, name, key string) ([]*T, error) {
	tomlPath := name + ".toml"
	data, err := fs.ReadFile(fsys, tomlPath)
	if err == nil {
		var doc map[string][]T
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("resource: parse %s: %w", tomlPath, err)
		}
		rows := doc[key]
		out := make([]*T, len(rows))
		for i := range rows {
			out[i] = &rows[i]
		}
		return out, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("resource: read %s: %w", tomlPath, err)
	}
	return loadJSONArray[T](fsys, name+".json")
}

func loadJSONArray[T any](fsys fs.FS, path string) ([]*T, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("resource: read %s: %w", path, err)
	}
	var arr []*T
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", path, err)
	}
	return arr, nil
}

// Summary counts catalog entries for the validate command and startup log.
type Summary struct {
	Source     string `json:"source"`
	Quests     int    `json:"quests"`
	Skills     int    `json:"skills"`
	Trees      int    `json:"trees"`
	Milestones int    `json:"milestones"`
}

// Summary returns entry counts.
func (c *Catalog) Summary() Summary {
	return Summary{
		Source:     c.Source,
		Quests:     c.Quests.Len(),
		Skills:     c.Skills.Len(),
		Trees:      len(c.Skills.Trees()),
		Milestones: c.Milestones.Len(),
	}
}
