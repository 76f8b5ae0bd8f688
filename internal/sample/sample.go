// Package sample loads atomic models in the legacy XYZ format and produces
// frozen-phonon configurations from them.
package sample

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Atom is one site of the atomic model. Species is the atomic number;
// coordinates are in angstroms. Occ is the site occupancy in [0,1] and
// Sigma the RMS thermal displacement.
type Atom struct {
	Species    int
	X, Y, Z    float64
	Occ, Sigma float64
}

// Cell is a unit cell: its dimensions and atom sites.
type Cell struct {
	DimX, DimY, DimZ float64
	Atoms            []Atom
}

func fields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Parse reads an XYZ-format model: a comment line, a cell-dimension line
// "a b c", then one line per atom "Z x y z occ sigma", terminated by a line
// whose first token is "-1" or by end of input.
func Parse(r io.Reader) (*Cell, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("sample: missing comment line")
	}
	if !sc.Scan() {
		return nil, fmt.Errorf("sample: missing cell dimension line")
	}
	dims := fields(strings.TrimSpace(sc.Text()))
	if len(dims) < 3 {
		return nil, fmt.Errorf("sample: bad cell dimension line %q", sc.Text())
	}
	cell := &Cell{}
	var err error
	if cell.DimX, err = strconv.ParseFloat(dims[0], 64); err != nil {
		return nil, fmt.Errorf("sample: bad cell dimension %q", dims[0])
	}
	if cell.DimY, err = strconv.ParseFloat(dims[1], 64); err != nil {
		return nil, fmt.Errorf("sample: bad cell dimension %q", dims[1])
	}
	if cell.DimZ, err = strconv.ParseFloat(dims[2], 64); err != nil {
		return nil, fmt.Errorf("sample: bad cell dimension %q", dims[2])
	}

	line := 2
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		toks := fields(text)
		if toks[0] == "-1" {
			break
		}
		if len(toks) < 6 {
			return nil, fmt.Errorf("sample: bad atom line %d: %q", line, text)
		}
		var a Atom
		vals := make([]float64, 6)
		for i := 0; i < 6; i++ {
			vals[i], err = strconv.ParseFloat(toks[i], 64)
			if err != nil {
				return nil, fmt.Errorf("sample: bad atom line %d: %q", line, text)
			}
		}
		a.Species = int(vals[0])
		a.X, a.Y, a.Z = vals[1], vals[2], vals[3]
		a.Occ, a.Sigma = vals[4], vals[5]
		cell.Atoms = append(cell.Atoms, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	if len(cell.Atoms) == 0 {
		return nil, fmt.Errorf("sample: no atoms found")
	}
	return cell, nil
}

// Load opens path and parses it with Parse.
func Load(path string) (*Cell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Tile replicates the cell nx x ny x nz times. Counts below 1 are treated
// as 1.
func (c *Cell) Tile(nx, ny, nz int) *Cell {
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	if nz < 1 {
		nz = 1
	}
	tiled := &Cell{
		DimX:  c.DimX * float64(nx),
		DimY:  c.DimY * float64(ny),
		DimZ:  c.DimZ * float64(nz),
		Atoms: make([]Atom, 0, len(c.Atoms)*nx*ny*nz),
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				for _, a := range c.Atoms {
					a.X += float64(i) * c.DimX
					a.Y += float64(j) * c.DimY
					a.Z += float64(k) * c.DimZ
					tiled.Atoms = append(tiled.Atoms, a)
				}
			}
		}
	}
	return tiled
}

// Displace produces one frozen-phonon configuration: every site gets an
// independent Gaussian displacement with its own sigma when thermal effects
// are on, and sites are kept with probability Occ when occupancy is
// considered.
func (c *Cell) Displace(rng *rand.Rand, thermal, occupancy bool) []Atom {
	out := make([]Atom, 0, len(c.Atoms))
	for _, a := range c.Atoms {
		if occupancy && a.Occ < 1.0 && rng.Float64() >= a.Occ {
			continue
		}
		if thermal && a.Sigma > 0 {
			a.X += rng.NormFloat64() * a.Sigma
			a.Y += rng.NormFloat64() * a.Sigma
			a.Z += rng.NormFloat64() * a.Sigma
		}
		out = append(out, a)
	}
	return out
}
