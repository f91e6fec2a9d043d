package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

func LatFormat(lat float64, dms bool) string {
	if !dms {
		return fmt.Sprintf("%.6f", lat)
	}
	return dms_format(lat, "%02d:%02d:%04.1f%c", "NS")
}

func LonFormat(lon float64, dms bool) string {
	if !dms {
		return fmt.Sprintf("%.6f", lon)
	}
	return dms_format(lon, "%03d:%02d:%04.1f%c", "EW")
}

func PositionFormat(lat float64, lon float64, dms bool) string {
	var sb strings.Builder
	sb.WriteString(LatFormat(lat, dms))
	sb.WriteByte(' ')
	sb.WriteString(LonFormat(lon, dms))
	return sb.String()
}

func dms_format(coord float64, ofmt string, ind string) string {
	ds := math.Abs(coord)
	d := int(ds)
	rem := (ds - float64(d)) * 3600.0
	m := int(rem / 60)
	s := rem - float64(m*60)
	if int(s*10) == 600 {
		m += 1
		s = 0
	}
	if m == 60 {
		m = 0
		d += 1
	}
	q := ind[0]
	if coord < 0.0 {
		q = ind[1]
	}
	return fmt.Sprintf(ofmt, d, m, s, q)
}

// Msplit splits s on any of the separator runes, dropping empty fields.
func Msplit(s string, separators []rune) []string {
	f := func(r rune) bool {
		for _, s := range separators {
			if r == s {
				return true
			}
		}
		return false
	}
	return strings.FieldsFunc(s, f)
}

// ParseCoord accepts decimal degrees ("44.9087", "-6.25") or the DMS form
// produced by LatFormat/LonFormat ("44:54:31.2N").
func ParseCoord(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	sign := 1.0
	hemi := true
	switch s[len(s)-1] {
	case 'S', 's', 'W', 'w':
		sign = -1
		s = s[:len(s)-1]
	case 'N', 'n', 'E', 'e':
		s = s[:len(s)-1]
	default:
		hemi = false
	}
	if hemi && strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("bad coordinate %q: sign and hemisphere both given", s)
	}
	parts := Msplit(s, []rune{':', ' '})
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("bad coordinate %q", s)
	}
	var v float64
	div := 1.0
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("bad coordinate %q: %w", s, err)
		}
		if div > 1 && (f < 0 || f >= 60) {
			return 0, fmt.Errorf("bad coordinate %q", s)
		}
		v += math.Abs(f) / div
		if f < 0 || strings.HasPrefix(p, "-") {
			sign = -sign
		}
		div *= 60
	}
	return sign * v, nil
}

// ParsePosition parses "lat,lon" (or lat/lon, lat;lon) into a pair.
func ParsePosition(s string) (float64, float64, error) {
	parts := Msplit(s, []rune{'/', ',', ';'})
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad position %q, want lat,lon", s)
	}
	lat, err := ParseCoord(parts[0])
	if err != nil {
		return 0, 0, err
	}
	lon, err := ParseCoord(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
