package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stronnag/altimap/pkg/geo"
	"github.com/stronnag/altimap/pkg/grid"
)

// ASCIIGrid is an Esri ASCII raster. Cells are not square in degrees, so
// the GDAL dx/dy header extension is written instead of cellsize unless
// they happen to be equal.
type ASCIIGrid struct {
	Ncols, Nrows     int
	Xcorner, Ycorner float64
	DX, DY           float64
	NoDataValue      float64
	Data             [][]float64
}

// Dims returns the dimensions of the grid.
func (a *ASCIIGrid) Dims() (c, r int) {
	return a.Ncols, a.Nrows
}

// Z returns the value at (c, r); row 0 is the north edge.
func (a *ASCIIGrid) Z(c, r int) float64 {
	return a.Data[r][c]
}

// X returns the longitude of the centre of column c.
func (a *ASCIIGrid) X(c int) float64 {
	return a.Xcorner + (float64(c)+0.5)*a.DX
}

// Y returns the latitude of the centre of row r.
func (a *ASCIIGrid) Y(r int) float64 {
	return a.Ycorner + (float64(a.Nrows-r)-0.5)*a.DY
}

// ToASCII lays a grid out as an Esri raster.
func ToASCII(g *grid.Grid) *ASCIIGrid {
	n := g.Dim()
	b := g.Spec.Bound()
	a := &ASCIIGrid{
		Ncols:       n,
		Nrows:       n,
		Xcorner:     b.Left(),
		Ycorner:     b.Bottom(),
		DX:          (b.Right() - b.Left()) / float64(n),
		DY:          (b.Top() - b.Bottom()) / float64(n),
		NoDataValue: grid.NoData,
		Data:        make([][]float64, n),
	}
	vals := g.Values()
	for r := 0; r < n; r++ {
		a.Data[r] = vals[r*n : (r+1)*n]
	}
	return a
}

func ffmt(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (a *ASCIIGrid) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", a.Ncols, a.Nrows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", ffmt(a.Xcorner), ffmt(a.Ycorner))
	if a.DX == a.DY {
		fmt.Fprintf(bw, "cellsize %s\n", ffmt(a.DX))
	} else {
		fmt.Fprintf(bw, "dx %s\ndy %s\n", ffmt(a.DX), ffmt(a.DY))
	}
	fmt.Fprintf(bw, "NODATA_value %s\n", ffmt(a.NoDataValue))
	for _, row := range a.Data {
		for c, v := range row {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(ffmt(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteASCII exports a frozen grid as an Esri ASCII raster. Neither the
// grid spec nor the status is recoverable from this format, so interrupted
// grids are refused; use Write for those.
func WriteASCII(g *grid.Grid, path string) error {
	if !g.Frozen() {
		return &WriteError{Path: path, Err: ErrNotFrozen}
	}
	if g.Status() == grid.Interrupted {
		return &WriteError{Path: path, Err: ErrInterrupted}
	}
	a := ToASCII(g)
	err := replaceFile(path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if err := a.Write(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// ParseASCII reads an Esri ASCII raster. Both corner and centre origins
// and both cellsize and dx/dy are understood.
func ParseASCII(r io.Reader) (*ASCIIGrid, error) {
	a := &ASCIIGrid{NoDataValue: -9999}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	var xcentre, ycentre bool
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		if len(fields) == 2 && key[0] >= 'a' && key[0] <= 'z' {
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("asc header %s: %w", fields[0], err)
			}
			switch key {
			case "ncols":
				a.Ncols = int(v)
			case "nrows":
				a.Nrows = int(v)
			case "xllcorner":
				a.Xcorner = v
			case "yllcorner":
				a.Ycorner = v
			case "xllcenter":
				a.Xcorner, xcentre = v, true
			case "yllcenter":
				a.Ycorner, ycentre = v, true
			case "cellsize":
				a.DX, a.DY = v, v
			case "dx":
				a.DX = v
			case "dy":
				a.DY = v
			case "nodata_value":
				a.NoDataValue = v
			default:
				return nil, fmt.Errorf("asc: unknown header %s", fields[0])
			}
			continue
		}
		if a.Ncols <= 0 || a.Nrows <= 0 {
			return nil, fmt.Errorf("asc: data before ncols/nrows")
		}
		row := make([]float64, 0, a.Ncols)
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("asc row %d: %w", len(a.Data), err)
			}
			row = append(row, v)
		}
		if len(row) != a.Ncols {
			return nil, fmt.Errorf("asc row %d: %d values, want %d", len(a.Data), len(row), a.Ncols)
		}
		a.Data = append(a.Data, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(a.Data) != a.Nrows {
		return nil, fmt.Errorf("asc: %d rows, want %d", len(a.Data), a.Nrows)
	}
	if xcentre {
		a.Xcorner -= a.DX / 2
	}
	if ycentre {
		a.Ycorner -= a.DY / 2
	}
	return a, nil
}

// ReadASCII loads an Esri raster file.
func ReadASCII(path string) (*ASCIIGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseASCII(f)
}

// Position returns the geographic centre of cell (c, r).
func (a *ASCIIGrid) Position(c, r int) (lat, lon float64) {
	return a.Y(r), geo.NormaliseLon(a.X(c))
}
