package scan

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"howett.net/plist"
)

const (
	airPlayDefaultPort = 7000
	airPlayInfoLimit   = 1 << 20
	airPlayTimeout     = 1500 * time.Millisecond
)

// airPlayPaths are tried in order; older receivers only serve server-info.
var airPlayPaths = []string{"/info", "/server-info"}

// airPlayInfo holds the fields of a receiver's info plist used for naming.
type airPlayInfo struct {
	Name     string `plist:"name"`
	Model    string `plist:"model"`
	DeviceID string `plist:"deviceid"`
}

var errEmptyPlist = errors.New("empty plist")

func decodeAirPlayInfo(data []byte) (airPlayInfo, error) {
	var info airPlayInfo
	if len(data) == 0 {
		return info, errEmptyPlist
	}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return info, err
	}
	info.Name = strings.TrimSpace(info.Name)
	info.Model = strings.TrimSpace(info.Model)
	info.DeviceID = strings.TrimSpace(info.DeviceID)
	return info, nil
}

// fetchAirPlayName returns the user-visible name of the AirPlay receiver at
// host, or "" when it cannot be read.
func fetchAirPlayName(ctx context.Context, host string, port int) string {
	if host == "" {
		return ""
	}
	if port <= 0 {
		port = airPlayDefaultPort
	}

	ctx, cancel := context.WithTimeout(ctx, airPlayTimeout)
	defer cancel()

	base := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	client := &http.Client{Timeout: airPlayTimeout}
	for _, path := range airPlayPaths {
		info, err := getAirPlayInfo(ctx, client, base+path)
		if err != nil {
			if ctx.Err() != nil {
				return ""
			}
			continue
		}
		if info.Name != "" {
			return info.Name
		}
	}
	return ""
}

func getAirPlayInfo(ctx context.Context, client *http.Client, url string) (airPlayInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return airPlayInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return airPlayInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return airPlayInfo{}, errors.New(resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, airPlayInfoLimit))
	if err != nil {
		return airPlayInfo{}, err
	}
	return decodeAirPlayInfo(data)
}
