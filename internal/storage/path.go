package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildChartPath partitions archived charts by the UTC day they were rendered.
func BuildChartPath(traceID string, renderedAt time.Time) (string, error) {
	if err := validatePathComponent(traceID, "trace id"); err != nil {
		return "", err
	}
	ts := renderedAt.UTC()
	return path.Join(
		"charts",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		traceID+".png",
	), nil
}

// ValidateSnapshotKey accepts relative slash-separated keys ending in .parquet.
func ValidateSnapshotKey(key string) error {
	if !strings.HasSuffix(key, ".parquet") {
		return fmt.Errorf("invalid snapshot key %q: must end with .parquet", key)
	}
	for _, part := range strings.Split(key, "/") {
		if err := validatePathComponent(part, "snapshot key component"); err != nil {
			return err
		}
	}
	return nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) || strings.Contains(value, "..") {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
