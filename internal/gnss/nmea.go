// Package gnss turns location fixes into the NMEA sentences the adapter
// forwards to the phone. Only sentence production is handled here; fix
// acquisition belongs to a Provider.
package gnss

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const knotsPerMeterSecond = 1.943844

// Fix is one location sample
type Fix struct {
	Latitude  float64 // degrees, north positive
	Longitude float64 // degrees, east positive
	Altitude  float64 // metres above mean sea level
	Speed     float64 // metres per second
	Bearing   float64 // degrees true
	Accuracy  float64 // horizontal, metres
	Time      time.Time
}

// Checksum returns the two-digit uppercase hex XOR of body, which is the text
// between '$' and '*'.
func Checksum(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("%02X", cs)
}

// Sentence wraps body as "$body*CS\r\n"
func Sentence(body string) string {
	return "$" + body + "*" + Checksum(body) + "\r\n"
}

// GGA returns the fix data sentence for f
func GGA(f Fix) string {
	lat, ns := coordinate(f.Latitude, 2, "N", "S")
	lon, ew := coordinate(f.Longitude, 3, "E", "W")
	body := strings.Join([]string{
		"GPGGA",
		utcTime(f.Time),
		lat, ns,
		lon, ew,
		"1",  // GPS fix
		"08", // satellites; not reported by providers
		hdop(f.Accuracy),
		fmt.Sprintf("%.1f", f.Altitude), "M",
		"0.0", "M",
		"", "",
	}, ",")
	return Sentence(body)
}

// RMC returns the recommended minimum sentence for f
func RMC(f Fix) string {
	lat, ns := coordinate(f.Latitude, 2, "N", "S")
	lon, ew := coordinate(f.Longitude, 3, "E", "W")
	body := strings.Join([]string{
		"GPRMC",
		utcTime(f.Time),
		"A",
		lat, ns,
		lon, ew,
		fmt.Sprintf("%.1f", math.Max(f.Speed, 0)*knotsPerMeterSecond),
		fmt.Sprintf("%.1f", normaliseBearing(f.Bearing)),
		f.Time.UTC().Format("020106"),
		"", "",
		"A",
	}, ",")
	return Sentence(body)
}

// Encode returns the GGA and RMC sentences for f, CRLF terminated
func Encode(f Fix) []byte {
	return []byte(GGA(f) + RMC(f))
}

// coordinate formats degrees as ddmm.mmmm (or dddmm.mmmm) with a hemisphere
func coordinate(deg float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	whole := math.Floor(deg)
	minutes := (deg - whole) * 60
	// Rounding 59.99995 up must carry into the degrees
	if math.Round(minutes*10000) >= 600000 {
		whole++
		minutes = 0
	}
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(whole), minutes), hemi
}

func utcTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%02d%02d%02d.%02d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e7)
}

// hdop approximates horizontal dilution from accuracy in metres
func hdop(accuracy float64) string {
	if accuracy <= 0 {
		return "1.0"
	}
	return fmt.Sprintf("%.1f", accuracy/5)
}

func normaliseBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}
