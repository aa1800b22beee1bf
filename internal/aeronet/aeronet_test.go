package aeronet

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/aodmatch/internal/station"
)

const aodFile = `AERONET Version 3;
Hong_Kong_PolyU
Version 3: AOD Level 2.0
The following data are automatically cloud cleared and quality assured with pre-field and post-field calibration applied.
Contact: PI=Janet Nichol; PI Email=lsjanet@polyu.edu.hk
Date(dd:mm:yyyy),Time(hh:mm:ss),Day_of_Year,AOD_1640nm,AOD_500nm,440-870_Angstrom_Exponent
14:03:2019,02:31:07,73,-999.000000,0.512000,1.250000
14:03:2019,02:46:07,73,-999.000000,0.498000,-999.000000
14:03:2019,03:01:07,73,-999.000000,0.455000,1.190000
xx:03:2019,03:16:07,73,-999.000000,0.455000,1.190000
14:03:2019,03:31:07,73,-999.000000,N/A,1.190000
`

const sdaFile = `AERONET Version 3;
Hong_Kong_PolyU
Version 3: SDA Retrieval Level 2.0
Date_(dd:mm:yyyy),Time_(hh:mm:ss),Day_of_Year,Total_AOD_500nm[tau_a],FineModeFraction_500nm[eta]
14:03:2019,02:31:07,73,0.512,0.810
14:03:2019,02:46:07,73,0.498,0.790
14:03:2019,03:01:07,73,0.455,-999.000000
`

func TestFindHeader(t *testing.T) {
	n, err := FindHeader(strings.NewReader(aodFile), AODKeyword)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = FindHeader(strings.NewReader(aodFile), SDAKeyword)
	assert.Equal(t, ErrHeaderNotFound, errors.Cause(err))
}

func TestReadAOD(t *testing.T) {
	recs, err := ReadAOD(strings.NewReader(aodFile))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, time.Date(2019, 3, 14, 2, 31, 7, 0, time.UTC), recs[0].Time)
	assert.Equal(t, "14:03:2019", recs[0].Date)
	assert.Equal(t, "02:31:07", recs[0].Hour)
	assert.Equal(t, 0.512, recs[0].AOD)
	assert.Equal(t, 1.25, recs[0].AE)
	assert.Equal(t, -999.0, recs[1].AE)
}

func TestReadSDAWrongProduct(t *testing.T) {
	_, err := ReadSDA(strings.NewReader(aodFile))
	assert.Equal(t, ErrHeaderNotFound, errors.Cause(err))
}

func TestParseTimeSerial(t *testing.T) {
	ts, err := ParseTime("43538", "02:31:07")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 14, 2, 31, 7, 0, time.UTC), ts)

	_, err = ParseTime("43538", "late")
	assert.Error(t, err)
	_, err = ParseTime("yesterday", "02:31:07")
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	aod, err := ReadAOD(strings.NewReader(aodFile))
	require.NoError(t, err)
	sda, err := ReadSDA(strings.NewReader(sdaFile))
	require.NoError(t, err)

	ms := Merge(aod, sda)
	// 02:46 has a negative AE and 03:01 a negative FMF.
	require.Len(t, ms, 1)
	assert.Equal(t, time.Date(2019, 3, 14, 2, 31, 7, 0, time.UTC), ms[0].Time)
	assert.Equal(t, 0.81, ms[0].FMF)
	assert.True(t, math.IsNaN(ms[0].Lat))
}

func TestStationName(t *testing.T) {
	assert.Equal(t, "Hong_Kong_PolyU", StationName("20190101_20191231_Hong_Kong_PolyU"))
	assert.Equal(t, "Kanpur", StationName("20190101_20191231_Kanpur"))
	assert.Equal(t, "Kanpur", StationName("Kanpur"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCombine(t *testing.T) {
	root := t.TempDir()
	aodRoot := filepath.Join(root, "AOD")
	sdaRoot := filepath.Join(root, "FMF")
	writeFile(t, filepath.Join(aodRoot, "2019_2019_Hong_Kong_PolyU", "x.lev20"), aodFile)
	writeFile(t, filepath.Join(sdaRoot, "2019_2019_Hong_Kong_PolyU", "x.ONEILL_lev20"), sdaFile)
	writeFile(t, filepath.Join(aodRoot, "2019_2019_Nowhere", "y.lev20"), aodFile)
	writeFile(t, filepath.Join(sdaRoot, "2019_2019_Nowhere", "y.ONEILL_lev20"), sdaFile)
	writeFile(t, filepath.Join(aodRoot, "2019_2019_Kanpur", "z.lev20"), aodFile)
	writeFile(t, filepath.Join(aodRoot, "2019_2019_Broken", "b.lev20"), "no header here\n")
	writeFile(t, filepath.Join(sdaRoot, "2019_2019_Broken", "b.ONEILL_lev20"), sdaFile)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ms, err := Combine(context.Background(), logger, aodRoot, sdaRoot, station.Default())
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.Equal(t, "Hong_Kong_PolyU", ms[0].Station)
	assert.Equal(t, 22.3045, ms[0].Lat)
	assert.Equal(t, 114.1791, ms[0].Lon)
	assert.Equal(t, "Nowhere", ms[1].Station)
	assert.True(t, math.IsNaN(ms[1].Lat))
}

func TestGroundTruthRoundTrip(t *testing.T) {
	ms := []Measurement{
		{Station: "Kanpur", Time: time.Date(2019, 3, 14, 2, 31, 7, 0, time.UTC), Date: "14:03:2019", Hour: "02:31:07",
			AOD: 0.5, AE: 1.2, FMF: 0.8, Lat: 26.512, Lon: 80.231},
		{Station: "Nowhere", Time: time.Date(2019, 3, 14, 3, 0, 0, 0, time.UTC), Date: "14:03:2019", Hour: "03:00:00",
			AOD: 0.4, AE: 1.1, FMF: 0.7, Lat: math.NaN(), Lon: math.NaN()},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteGroundTruth(&buf, ms))
	assert.True(t, strings.HasPrefix(buf.String(), "datetime,AOD,AE,Date,Time,FMF,latitude,longitude,station\n2019-03-14 02:31:07,"))

	got, err := ReadGroundTruth(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ms[0], got[0])
	assert.True(t, math.IsNaN(got[1].Lat))
	assert.Equal(t, ms[1].Time, got[1].Time)
}

func TestReadGroundTruthDropsBadDatetime(t *testing.T) {
	in := "datetime,AOD,AE,FMF,station\n" +
		"2019-03-14 02:31:07,0.5,1.2,0.8,Kanpur\n" +
		"not a time,0.5,1.2,0.8,Kanpur\n" +
		"2019-03-14T02:41:07,0.6,,0.8,Kanpur\n"
	got, err := ReadGroundTruth(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, math.IsNaN(got[1].AE))
	assert.True(t, math.IsNaN(got[1].Lat))
}

func TestGroundTruthFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged", "AERONET_groundtruth_ALL.csv")
	require.NoError(t, WriteGroundTruthFile(path, nil))
	got, err := ReadGroundTruthFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoFileExists(t, path+".part")
}

func TestCombineFolder(t *testing.T) {
	root := t.TempDir()
	aodDir := filepath.Join(root, "AOD", "2019_2019_Hong_Kong_PolyU")
	sdaDir := filepath.Join(root, "FMF", "2019_2019_Hong_Kong_PolyU")
	writeFile(t, filepath.Join(aodDir, "x.lev20"), aodFile)
	require.NoError(t, os.MkdirAll(sdaDir, 0o755))

	_, found, err := combineFolder(aodDir, sdaDir)
	require.NoError(t, err)
	assert.False(t, found)

	// Same columns, but no timestamp shared with the AOD file.
	writeFile(t, filepath.Join(sdaDir, "x.ONEILL_lev20"), strings.ReplaceAll(sdaFile, "14:03:2019", "15:03:2019"))
	recs, found, err := combineFolder(aodDir, sdaDir)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, recs)
}
