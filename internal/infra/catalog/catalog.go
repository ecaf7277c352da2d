package catalog

import (
	_ "embed"
	"os"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jose-valero/pug-league-bot/internal/domain"
)

//go:embed maps.yaml
var defaultMaps []byte

var ErrUnknownMap = errors.New("unknown map")

// DefaultPool is the map pool given to new leagues.
var DefaultPool = []string{"de_dust2", "de_mirage", "de_inferno", "de_nuke", "de_overpass", "de_vertigo", "de_train"}

// Catalog is the fixed set of maps leagues can put in their pool.
type Catalog struct {
	maps  []domain.Map
	byDev map[string]domain.Map
}

type file struct {
	Maps []domain.Map `yaml:"maps"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) { return Parse(defaultMaps) }

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode maps")
	}
	c := &Catalog{byDev: make(map[string]domain.Map, len(f.Maps))}
	emojis := make(map[string]bool, len(f.Maps))
	for _, m := range f.Maps {
		if m.DevName == "" || m.Emoji == "" {
			return nil, errors.Errorf("map %q needs dev_name and emoji", m.Name)
		}
		if _, dup := c.byDev[m.DevName]; dup {
			return nil, errors.Errorf("duplicate map %s", m.DevName)
		}
		if emojis[m.Emoji] {
			return nil, errors.Errorf("map %s reuses emoji %s", m.DevName, m.Emoji)
		}
		emojis[m.Emoji] = true
		c.byDev[m.DevName] = m
		c.maps = append(c.maps, m)
	}
	if len(c.maps) < domain.MinMapPool {
		return nil, errors.Wrapf(domain.ErrMapPoolTooSmall, "catalog has %d maps", len(c.maps))
	}
	return c, nil
}

func (c *Catalog) All() []domain.Map { return slices.Clone(c.maps) }

func (c *Catalog) Get(devName string) (domain.Map, bool) {
	m, ok := c.byDev[devName]
	return m, ok
}

// Resolve maps dev names to catalog entries, keeping their order.
func (c *Catalog) Resolve(devNames []string) ([]domain.Map, error) {
	out := make([]domain.Map, 0, len(devNames))
	for _, d := range devNames {
		m, ok := c.byDev[d]
		if !ok {
			return nil, errors.Wrap(ErrUnknownMap, d)
		}
		out = append(out, m)
	}
	return out, nil
}
