package domain

import (
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

var (
	// compactStampRe matches the MRMS "YYYYMMDD-HHMMSS" stamp, e.g.
	// "MRMS_MergedReflectivityQC_3D_20250101-123456_renamed.grib2", and the
	// ProbSevere "YYYYMMDD_HHMMSS" variant.
	compactStampRe = regexp.MustCompile(`(\d{8})[-_](\d{6})`)

	// goesStampRe matches a GOES scan-start stamp "sYYYYDDDHHMMSSt" (day of year).
	goesStampRe = regexp.MustCompile(`s(\d{4})(\d{3})(\d{2})(\d{2})(\d{2})\d`)
)

// TimestampFromFilename extracts a UTC scan time from a data file name.
// When no known stamp is present it falls back to the current time and reports false.
func TimestampFromFilename(path string) (time.Time, bool) {
	if ts, ok := parseFilenameTimestamp(path); ok {
		return ts, true
	}
	return clock.Now().UTC().Truncate(time.Second), false
}

func parseFilenameTimestamp(path string) (time.Time, bool) {
	name := filepath.Base(path)

	if m := compactStampRe.FindStringSubmatch(name); m != nil {
		ts, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.UTC)
		if err == nil {
			return ts, true
		}
	}

	if m := goesStampRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		doy, _ := strconv.Atoi(m[2])
		hour, _ := strconv.Atoi(m[3])
		mins, _ := strconv.Atoi(m[4])
		sec, _ := strconv.Atoi(m[5])
		if doy >= 1 && doy <= 366 && hour < 24 && mins < 60 && sec < 61 {
			return time.Date(year, time.January, doy, hour, mins, sec, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}
