package station

import (
	"sort"

	"github.com/pkg/errors"
)

// Station is an AERONET ground site.
type Station struct {
	Name string  `mapstructure:"name"`
	Lat  float64 `mapstructure:"lat"`
	Lon  float64 `mapstructure:"lon"`
}

// Set is an immutable, ordered collection of stations. The order is the one
// in which stations were supplied and is used wherever output is emitted per
// station.
type Set struct {
	stations []Station
	byName   map[string]int
}

// NewSet creates a station set. Names must be unique and non-empty.
func NewSet(stations []Station) (*Set, error) {
	s := &Set{
		stations: make([]Station, len(stations)),
		byName:   make(map[string]int, len(stations)),
	}
	copy(s.stations, stations)
	for i, st := range s.stations {
		if st.Name == "" {
			return nil, errors.Errorf("station #%d has no name", i)
		}
		if _, dup := s.byName[st.Name]; dup {
			return nil, errors.Errorf("duplicate station %q", st.Name)
		}
		if st.Lat < -90 || st.Lat > 90 || st.Lon < -180 || st.Lon > 180 {
			return nil, errors.Errorf("station %q has invalid coordinates (%v, %v)", st.Name, st.Lat, st.Lon)
		}
		s.byName[st.Name] = i
	}
	return s, nil
}

// Default returns the reference set of stations used by the project.
func Default() *Set {
	s, err := NewSet(defaultStations)
	if err != nil {
		panic(err)
	}
	return s
}

// All returns a copy of the stations in set order.
func (s *Set) All() []Station {
	out := make([]Station, len(s.stations))
	copy(out, s.stations)
	return out
}

// Get looks a station up by name.
func (s *Set) Get(name string) (Station, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Station{}, false
	}
	return s.stations[i], true
}

// Len returns the number of stations.
func (s *Set) Len() int {
	return len(s.stations)
}

// Names returns station names in set order.
func (s *Set) Names() []string {
	names := make([]string, len(s.stations))
	for i, st := range s.stations {
		names[i] = st.Name
	}
	return names
}

// SortedNames returns station names in lexical order.
func (s *Set) SortedNames() []string {
	names := s.Names()
	sort.Strings(names)
	return names
}

var defaultStations = []Station{
	{Name: "Chiayi", Lat: 23.452, Lon: 120.255},
	{Name: "Hong_Kong_PolyU", Lat: 22.3045, Lon: 114.1791},
	{Name: "Taihu", Lat: 31.421, Lon: 120.215},
	{Name: "Anmyon", Lat: 36.539, Lon: 126.330},
	{Name: "Beijing", Lat: 39.904, Lon: 116.407},
	{Name: "Beijing-CAMS", Lat: 39.905, Lon: 116.391},
	{Name: "Chiang_Mai_Met_Sta", Lat: 18.770, Lon: 98.980},
	{Name: "Fukuoka", Lat: 33.590, Lon: 130.401},
	{Name: "Gandhi_College", Lat: 25.870, Lon: 85.080},
	{Name: "Gwangju_GIST", Lat: 35.230, Lon: 126.840},
	{Name: "Hong_Kong_Sheung", Lat: 22.5000, Lon: 114.1000},
	{Name: "Lulin", Lat: 23.4686, Lon: 120.8736},
	{Name: "NAM_CO", Lat: 30.773, Lon: 90.962},
	{Name: "Osaka", Lat: 34.693, Lon: 135.502},
	{Name: "Pokhara", Lat: 28.209, Lon: 83.991},
	{Name: "QOMS_CAS", Lat: 28.365, Lon: 86.948},
	{Name: "Seoul_SNU", Lat: 37.460, Lon: 126.950},
	{Name: "Taipei_CWB", Lat: 25.037, Lon: 121.565},
	{Name: "XiangHe", Lat: 39.7610, Lon: 117.0060},
	{Name: "Kanpur", Lat: 26.512, Lon: 80.231},
	{Name: "Omkoi", Lat: 17.798, Lon: 98.431},
	{Name: "NGHIA_DO", Lat: 21.047, Lon: 105.799},
	{Name: "Nong_Khai", Lat: 17.877, Lon: 102.716},
	{Name: "Lumbini", Lat: 27.490, Lon: 83.279},
}
