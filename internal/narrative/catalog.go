package narrative

import (
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
)

// Blurb is one unit of narrative content from the authored catalog. It
// becomes eligible once its trigger fires while the story sits at or past
// Beat; Order breaks ties between blurbs sharing a trigger.
type Blurb struct {
	ID      string   `yaml:"id"`
	Trigger string   `yaml:"trigger"`
	Beat    Beat     `yaml:"beat"`
	Order   int      `yaml:"order"`
	Speaker string   `yaml:"speaker"`
	Chunks  []string `yaml:"chunks"`
}

// Catalog holds the two declarative documents loaded at startup: the
// progression rules and the trigger/blurb catalog. Immutable once loaded.
type Catalog struct {
	Rules  []Rule
	Blurbs []Blurb
}

type rulesDocument struct {
	Rules []Rule `yaml:"rules"`
}

type blurbsDocument struct {
	Blurbs []Blurb `yaml:"blurbs"`
}

// LoadCatalog reads both catalog files. A missing or malformed document
// degrades to an empty list with a logged warning: the game stays playable
// with no further narrative advancement from that document.
func LoadCatalog(rulesPath, blurbsPath string) *Catalog {
	cat := &Catalog{}

	var rules rulesDocument
	if err := readYAML(rulesPath, &rules); err != nil {
		log.Printf("[Catalog] Warning: progression rules unavailable: %v", err)
	} else {
		cat.Rules = rules.Rules
	}

	var blurbs blurbsDocument
	if err := readYAML(blurbsPath, &blurbs); err != nil {
		log.Printf("[Catalog] Warning: blurb catalog unavailable: %v", err)
	} else {
		for _, b := range blurbs.Blurbs {
			if b.ID == "" || b.Trigger == "" || len(b.Chunks) == 0 {
				log.Printf("[Catalog] Warning: skipping malformed blurb %q", b.ID)
				continue
			}
			cat.Blurbs = append(cat.Blurbs, b)
		}
	}

	log.Printf("[Catalog] Loaded %d rules, %d blurbs", len(cat.Rules), len(cat.Blurbs))
	return cat
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return nil
}

// ContentFor returns the blurb presented when the trigger fires at the
// given beat: the lowest-Order blurb for the trigger whose beat is not
// after the current one. Declaration order breaks Order ties.
func (c *Catalog) ContentFor(trigger string, beat Beat) *Blurb {
	eligible := make([]Blurb, 0, 2)
	for _, b := range c.Blurbs {
		if b.Trigger == trigger && !b.Beat.After(beat) {
			eligible = append(eligible, b)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Order < eligible[j].Order
	})
	blurb := eligible[0]
	return &blurb
}

// BlurbByID looks a blurb up by content id.
func (c *Catalog) BlurbByID(id string) *Blurb {
	for _, b := range c.Blurbs {
		if b.ID == id {
			blurb := b
			return &blurb
		}
	}
	return nil
}

// Categories returns the distinct category names referenced by
// category-entry triggers, in declaration order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var categories []string
	for _, b := range c.Blurbs {
		if name, ok := CategoryFromTrigger(b.Trigger); ok && !seen[name] {
			seen[name] = true
			categories = append(categories, name)
		}
	}
	return categories
}
