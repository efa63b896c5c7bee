// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/ibenthos/geotag/geoerr"
	"github.com/ibenthos/geotag/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="Garmin" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="1" lon="1"><name>ignored</name></wpt>
  <trk>
    <name>Transect A</name>
    <trkseg>
      <trkpt lat="-27.100000" lon="153.200000">
        <ele>1.5</ele>
        <time>2023-06-16T08:37:36Z</time>
        <extensions><gpxtpx:TrackPointExtension xmlns:gpxtpx="x"><gpxtpx:atemp>22</gpxtpx:atemp></gpxtpx:TrackPointExtension></extensions>
      </trkpt>
      <trkpt lat="-27.100100" lon="153.200100">
        <time>2023-06-16T18:38:36+10:00</time>
      </trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="-27.100200" lon="153.200200"><ele>2</ele><time>2023-06-16T08:39:36.500</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestParse(t *testing.T) {
	tr, err := Parse(strings.NewReader(sampleGPX))
	require.NoError(t, err)

	want := []TrackPoint{
		{
			Time:     time.Date(2023, 6, 16, 8, 37, 36, 0, time.UTC),
			Position: spatial.Position{Point: spatial.Point{Lat: -27.1, Lng: 153.2}, Elevation: spatial.Float(1.5)},
		},
		{
			Time:     time.Date(2023, 6, 16, 8, 38, 36, 0, time.UTC),
			Position: spatial.Position{Point: spatial.Point{Lat: -27.1001, Lng: 153.2001}},
		},
		{
			Time:     time.Date(2023, 6, 16, 8, 39, 36, 500e6, time.UTC),
			Position: spatial.Position{Point: spatial.Point{Lat: -27.1002, Lng: 153.2002}, Elevation: spatial.Float(2)},
		},
	}

	if diff := cmp.Diff(want, tr.Points(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Transect A", tr.Name())

	for _, p := range tr.Points() {
		assert.Equal(t, time.UTC, p.Time.Location())
	}
}

func TestParse_SortsByTime(t *testing.T) {
	doc := `<gpx><trk><trkseg>
		<trkpt lat="0" lon="2"><time>2024-01-01T00:02:00Z</time></trkpt>
		<trkpt lat="0" lon="0"><time>2024-01-01T00:00:00Z</time></trkpt>
		<trkpt lat="0" lon="1"><time>2024-01-01T00:01:00Z</time></trkpt>
		<trkpt lat="9" lon="9"><time>2024-01-01T00:01:00Z</time></trkpt>
	</trkseg></trk></gpx>`

	tr, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var lngs, lats []float64
	for _, p := range tr.Points() {
		lngs = append(lngs, p.Lng)
		lats = append(lats, p.Lat)
	}

	assert.Equal(t, []float64{0, 1, 9, 2}, lngs)
	assert.Equal(t, []float64{0, 0, 9, 0}, lats)
}

func TestParse_RoutePointsWithTime(t *testing.T) {
	doc := `<gpx><rte>
		<rtept lat="1" lon="1"><time>2024-01-01T00:00:00Z</time></rtept>
		<rtept lat="2" lon="2"></rtept>
	</rte></gpx>`

	tr, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Len())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{"empty input", "", geoerr.IsEmptyTrack},
		{"no points", `<gpx><trk><trkseg></trkseg></trk></gpx>`, geoerr.IsEmptyTrack},
		{"only waypoints", `<gpx><wpt lat="1" lon="1"/></gpx>`, geoerr.IsEmptyTrack},
		{"not xml", "lat,lon,time\n1,2,3", geoerr.IsMalformedTrack},
		{"truncated", `<gpx><trk><trkseg><trkpt lat="1"`, geoerr.IsMalformedTrack},
		{"missing time", `<gpx><trk><trkseg><trkpt lat="1" lon="1"></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
		{"blank time", `<gpx><trk><trkseg><trkpt lat="1" lon="1"><time> </time></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
		{"missing lon", `<gpx><trk><trkseg><trkpt lat="1"><time>2024-01-01T00:00:00Z</time></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
		{"bad lat", `<gpx><trk><trkseg><trkpt lat="north" lon="1"><time>2024-01-01T00:00:00Z</time></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
		{"lat out of range", `<gpx><trk><trkseg><trkpt lat="91" lon="1"><time>2024-01-01T00:00:00Z</time></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
		{"bad time", `<gpx><trk><trkseg><trkpt lat="1" lon="1"><time>yesterday</time></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
		{"bad ele", `<gpx><trk><trkseg><trkpt lat="1" lon="1"><ele>deep</ele><time>2024-01-01T00:00:00Z</time></trkpt></trkseg></trk></gpx>`, geoerr.IsMalformedTrack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	ok := filepath.Join(dir, "track.gpx")
	require.NoError(t, os.WriteFile(ok, []byte(sampleGPX), 0o600))

	tr, err := Load(ok)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len())

	empty := filepath.Join(dir, "empty.gpx")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	_, err = Load(empty)
	require.Error(t, err)
	assert.True(t, geoerr.IsEmptyTrack(err))
	assert.Contains(t, err.Error(), "empty.gpx")

	_, err = Load(filepath.Join(dir, "missing.gpx"))
	require.Error(t, err)
	assert.True(t, geoerr.IsMalformedTrack(err))
}

func TestLoad_Latin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><gpx><trk><name>Ca\xf1on</name><trkseg>" +
		`<trkpt lat="1" lon="1"><time>2024-01-01T00:00:00Z</time></trkpt></trkseg></trk></gpx>`

	tr, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Cañon", tr.Name())
}

func TestTrackCenterAndLength(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := New([]TrackPoint{
		{Time: t0, Position: spatial.Position{Point: spatial.Point{Lat: 0, Lng: 100}, Elevation: spatial.Float(-2)}},
		{Time: t0.Add(time.Minute), Position: spatial.Position{Point: spatial.Point{Lat: 0, Lng: 100.01}}},
		{Time: t0.Add(2 * time.Minute), Position: spatial.Position{Point: spatial.Point{Lat: 0.03, Lng: 100.02}, Elevation: spatial.Float(-4)}},
	})
	require.NoError(t, err)

	c := tr.Center()
	assert.InDelta(t, 0.01, c.Lat, 1e-12)
	assert.InDelta(t, 100.01, c.Lng, 1e-12)
	require.NotNil(t, c.Elevation)
	assert.InDelta(t, -3, *c.Elevation, 1e-12)

	assert.Greater(t, tr.Length(), 1111.0)
	assert.Equal(t, t0, tr.Start())
	assert.Equal(t, t0.Add(2*time.Minute), tr.End())
}
