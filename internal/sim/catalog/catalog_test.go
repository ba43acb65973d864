package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadShippedCatalog(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Digest == "" {
		t.Fatal("empty digest")
	}

	w, ok := c.Unit("worker")
	if !ok {
		t.Fatal("no worker definition")
	}
	if w.CarryCap <= 0 || w.GatherRate <= 0 || !w.CanBuild {
		t.Fatalf("worker is not a worker: %+v", w)
	}

	hq, ok := c.Building("hq")
	if !ok {
		t.Fatal("no hq definition")
	}
	if !hq.DropOff {
		t.Fatal("hq must be a drop-off")
	}
	found := false
	for _, u := range hq.Trains {
		if u == "worker" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hq does not train workers: %v", hq.Trains)
	}

	for name, b := range c.Buildings {
		for _, tech := range b.Researches {
			if _, ok := c.Tech(tech); !ok {
				t.Fatalf("building %s researches undefined tech %s", name, tech)
			}
		}
	}
}

func TestLoadDigestTracksContent(t *testing.T) {
	a, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Digest != b.Digest {
		t.Fatalf("digest not stable: %s vs %s", a.Digest, b.Digest)
	}
}

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no units", `
buildings:
  hq: {cost: {gold: 1}, build_time: 1, hp: 10}
`},
		{"trains unknown unit", `
units:
  worker: {cost: {gold: 1}, build_time: 1, hp: 10, speed: 1}
buildings:
  hq: {cost: {gold: 1}, build_time: 1, hp: 10, trains: [ghost]}
`},
		{"researches unknown tech", `
units:
  worker: {cost: {gold: 1}, build_time: 1, hp: 10, speed: 1}
buildings:
  lab: {cost: {gold: 1}, build_time: 1, hp: 10, researches: [ghost_tech]}
`},
		{"zero hp unit", `
units:
  worker: {cost: {gold: 1}, build_time: 1, hp: 0, speed: 1}
buildings:
  hq: {cost: {gold: 1}, build_time: 1, hp: 10}
`},
		{"carry without gather rate", `
units:
  worker: {cost: {gold: 1}, build_time: 1, hp: 10, speed: 1, carry_cap: 5}
buildings:
  hq: {cost: {gold: 1}, build_time: 1, hp: 10}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeCatalog(t, tc.body)
			if _, err := Load(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
