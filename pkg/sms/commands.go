package sms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/routewise/telemetry-engine/internal/models"
)

// Vendor command set for the fleet's trackers. Each command is a single
// SMS body; the device acknowledges LOCATE with a position reply and
// acts silently on the others.

// LocateCommand requests a single location fix.
func LocateCommand() string {
	return "CMD,LOCATE#"
}

// RealtimeCommand enables periodic position reporting at the given
// interval in seconds.
func RealtimeCommand(intervalSeconds int) string {
	return fmt.Sprintf("CMD,REALTIME,%d#", intervalSeconds)
}

// DirectConnectCommand points the device's reporting endpoint at the
// given server, making it stream to the inbound socket listener.
func DirectConnectCommand(ip string, port int) string {
	return fmt.Sprintf("CMD,SERVER,%s,%d#", ip, port)
}

// ParseLocationReply parses a device's position reply. Trackers answer
// in one of two shapes:
//
//	lat:12.971599 lon:77.594566 speed:32.5 acc:8.0 head:120
//	http://maps.google.com/maps?q=12.971599,77.594566
//
// The raw payload is preserved by callers for diagnostics when parsing
// fails.
func ParseLocationReply(body string) (lat, lon float64, speed, heading float64, accuracy *float64, err error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: empty reply", models.ErrParse)
	}

	if idx := strings.Index(body, "maps?q="); idx >= 0 {
		return parseMapsLink(body[idx+len("maps?q="):])
	}
	return parseKeyValueReply(body)
}

func parseMapsLink(coords string) (float64, float64, float64, float64, *float64, error) {
	if end := strings.IndexAny(coords, "& \n"); end >= 0 {
		coords = coords[:end]
	}
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: malformed maps link", models.ErrParse)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	return lat, lon, 0, 0, nil, nil
}

func parseKeyValueReply(body string) (float64, float64, float64, float64, *float64, error) {
	var (
		lat, lon, speed, heading float64
		accuracy                 *float64
		haveLat, haveLon         bool
	)

	for _, field := range strings.Fields(body) {
		key, value, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(key) {
		case "lat":
			lat, haveLat = f, true
		case "lon", "lng":
			lon, haveLon = f, true
		case "speed", "spd":
			speed = f
		case "head", "crs":
			heading = f
		case "acc":
			acc := f
			accuracy = &acc
		}
	}

	if !haveLat || !haveLon {
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: reply carries no coordinates", models.ErrParse)
	}
	return lat, lon, speed, heading, accuracy, nil
}
