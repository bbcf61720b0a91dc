// Package sac reads and writes binary SAC (Seismic Analysis Code) files.
//
// A SAC file is a fixed 632-byte header (70 float words, 40 int words, and
// 192 bytes of 8-byte character fields) followed by float32 samples. Header
// fields that are unset carry the sentinel -12345 (or "-12345  " for strings).
// Byte order is detected on read from the NVHDR header version word; files
// are written little-endian, matching the FDSN "sacbl" convention.
package sac

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
)

// Sentinels for unset header fields.
const (
	UndefFloat  = -12345.0
	UndefInt    = -12345
	undefString = "-12345  "
)

// Header version written by this package.
const headerVersion = 6

// Enumerated header values used here.
const (
	iftypeTime = 1 // ITIME: evenly spaced time series

	// IZTYPE values: what the NZ* reference time means.
	IztypeOrigin = 11 // IO: event origin
	IztypeBegin  = 9  // IB: file begin
)

const (
	headerBytes = 632
	nFloatWords = 70
	nIntWords   = 40
)

// Absolute word indices within the numeric header.
const (
	wDelta  = 0
	wDepmin = 1
	wDepmax = 2
	wB      = 5
	wE      = 6
	wO      = 7
	wA      = 8
	wStla   = 31
	wStlo   = 32
	wStel   = 33
	wEvla   = 35
	wEvlo   = 36
	wEvdp   = 38
	wMag    = 39
	wDist   = 50
	wAz     = 51
	wBaz    = 52
	wGcarc  = 53
	wDepmen = 56
	wCmpaz  = 57
	wCmpinc = 58

	wNzyear = 70
	wNzjday = 71
	wNzhour = 72
	wNzmin  = 73
	wNzsec  = 74
	wNzmsec = 75
	wNvhdr  = 76
	wNpts   = 79
	wIftype = 85
	wIztype = 87
	wLeven  = 105
	wLovrok = 107
	wLcalda = 108
)

// Byte offsets of the 8-byte character fields (KEVNM is 16 bytes).
const (
	oKstnm  = 440
	oKevnm  = 448
	oKhole  = 464
	oKa     = 480
	oKcmpnm = 600
	oKnetwk = 608
)

// Header is the subset of SAC header fields this pipeline reads or writes.
// Unused fields keep their sentinel on disk.
type Header struct {
	Delta float64 // sample interval, seconds
	B     float64 // first sample time relative to reference
	E     float64 // last sample time relative to reference
	O     float64 // event origin relative to reference
	A     float64 // phase arrival relative to reference

	Stla, Stlo, Stel float64
	Evla, Evlo, Evdp float64
	Mag              float64

	Dist, Az, Baz, Gcarc float64
	Cmpaz, Cmpinc        float64

	// Reference time.
	Nzyear, Nzjday, Nzhour, Nzmin, Nzsec, Nzmsec int
	Iztype                                       int

	Npts int

	Kstnm  string
	Kevnm  string
	Khole  string
	Ka     string
	Kcmpnm string
	Knetwk string
}

// NewHeader returns a header with every field set to its SAC sentinel.
func NewHeader() Header {
	return Header{
		Delta: UndefFloat, B: UndefFloat, E: UndefFloat, O: UndefFloat, A: UndefFloat,
		Stla: UndefFloat, Stlo: UndefFloat, Stel: UndefFloat,
		Evla: UndefFloat, Evlo: UndefFloat, Evdp: UndefFloat, Mag: UndefFloat,
		Dist: UndefFloat, Az: UndefFloat, Baz: UndefFloat, Gcarc: UndefFloat,
		Cmpaz: UndefFloat, Cmpinc: UndefFloat,
		Nzyear: UndefInt, Nzjday: UndefInt, Nzhour: UndefInt,
		Nzmin: UndefInt, Nzsec: UndefInt, Nzmsec: UndefInt,
		Iztype: UndefInt,
	}
}

// ReferenceTime returns the NZ* reference time, or the zero time if unset.
func (h *Header) ReferenceTime() time.Time {
	if h.Nzyear == UndefInt || h.Nzjday == UndefInt {
		return time.Time{}
	}
	t := time.Date(h.Nzyear, time.January, 1, h.Nzhour, h.Nzmin, h.Nzsec, h.Nzmsec*int(time.Millisecond), time.UTC)
	return t.AddDate(0, 0, h.Nzjday-1)
}

// StartTime returns the absolute time of the first sample (reference + B).
func (h *Header) StartTime() time.Time {
	ref := h.ReferenceTime()
	if ref.IsZero() || h.B == UndefFloat {
		return ref
	}
	return ref.Add(time.Duration(h.B * float64(time.Second)))
}

// File is a decoded SAC file.
type File struct {
	Header Header
	Data   []float32
}

// Read decodes a SAC file from disk.
func Read(path string) (*File, error) {
	return readFile(path, false)
}

// ReadHeader decodes only the 632-byte header, leaving Data nil. Used for
// cheap station-coordinate lookups over many files.
func ReadHeader(path string) (*File, error) {
	return readFile(path, true)
}

func readFile(path string, headOnly bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sf, err := Decode(f, headOnly)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return sf, nil
}

// Decode reads a SAC file from r. With headOnly set, sample data is skipped.
func Decode(r io.Reader, headOnly bool) (*File, error) {
	raw := make([]byte, headerBytes)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	order, err := detectByteOrder(raw)
	if err != nil {
		return nil, err
	}

	floats := make([]float64, nFloatWords)
	for i := 0; i < nFloatWords; i++ {
		floats[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
	}
	ints := make([]int, nIntWords)
	for i := 0; i < nIntWords; i++ {
		ints[i] = int(int32(order.Uint32(raw[(nFloatWords+i)*4:])))
	}

	h := Header{
		Delta: floats[wDelta], B: floats[wB], E: floats[wE], O: floats[wO], A: floats[wA],
		Stla: floats[wStla], Stlo: floats[wStlo], Stel: floats[wStel],
		Evla: floats[wEvla], Evlo: floats[wEvlo], Evdp: floats[wEvdp], Mag: floats[wMag],
		Dist: floats[wDist], Az: floats[wAz], Baz: floats[wBaz], Gcarc: floats[wGcarc],
		Cmpaz: floats[wCmpaz], Cmpinc: floats[wCmpinc],

		Nzyear: ints[wNzyear-nFloatWords], Nzjday: ints[wNzjday-nFloatWords],
		Nzhour: ints[wNzhour-nFloatWords], Nzmin: ints[wNzmin-nFloatWords],
		Nzsec: ints[wNzsec-nFloatWords], Nzmsec: ints[wNzmsec-nFloatWords],
		Iztype: ints[wIztype-nFloatWords],
		Npts:   ints[wNpts-nFloatWords],

		Kstnm:  decodeString(raw[oKstnm : oKstnm+8]),
		Kevnm:  decodeString(raw[oKevnm : oKevnm+16]),
		Khole:  decodeString(raw[oKhole : oKhole+8]),
		Ka:     decodeString(raw[oKa : oKa+8]),
		Kcmpnm: decodeString(raw[oKcmpnm : oKcmpnm+8]),
		Knetwk: decodeString(raw[oKnetwk : oKnetwk+8]),
	}

	if h.Npts < 0 || h.Npts == UndefInt {
		return nil, fmt.Errorf("invalid NPTS %d", h.Npts)
	}

	file := &File{Header: h}
	if headOnly {
		return file, nil
	}

	buf := make([]byte, 4*h.Npts)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read %d samples: %w", h.Npts, err)
	}
	file.Data = make([]float32, h.Npts)
	for i := range file.Data {
		file.Data[i] = math.Float32frombits(order.Uint32(buf[i*4:]))
	}
	return file, nil
}

// detectByteOrder inspects NVHDR, which is 1..6 in any valid file.
func detectByteOrder(raw []byte) (binary.ByteOrder, error) {
	le := int32(binary.LittleEndian.Uint32(raw[wNvhdr*4:]))
	if le >= 1 && le <= headerVersion {
		return binary.LittleEndian, nil
	}
	be := int32(binary.BigEndian.Uint32(raw[wNvhdr*4:]))
	if be >= 1 && be <= headerVersion {
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("not a SAC file: NVHDR=%d/%d", le, be)
}

func decodeString(b []byte) string {
	s := strings.TrimRight(string(b), " \x00")
	if s == strings.TrimRight(undefString, " ") {
		return ""
	}
	return s
}

// Write encodes the file to disk, little-endian.
func (f *File) Write(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Encode(out); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return out.Close()
}

// Encode writes the header and samples to w.
func (f *File) Encode(w io.Writer) error {
	h := f.Header
	raw := make([]byte, headerBytes)

	// Start from all-undefined words, then overlay known fields.
	for i := 0; i < nFloatWords; i++ {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(UndefFloat))
	}
	undefWord := int32(UndefInt)
	for i := nFloatWords; i < nFloatWords+nIntWords; i++ {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(undefWord))
	}
	for off := oKstnm; off < headerBytes; off += 8 {
		copy(raw[off:off+8], undefString)
	}

	putF := func(word int, v float64) {
		binary.LittleEndian.PutUint32(raw[word*4:], math.Float32bits(float32(v)))
	}
	putI := func(word, v int) {
		binary.LittleEndian.PutUint32(raw[word*4:], uint32(int32(v)))
	}
	putS := func(off, width int, s string) {
		if s == "" {
			return
		}
		field := make([]byte, width)
		for i := range field {
			field[i] = ' '
		}
		copy(field, s)
		copy(raw[off:off+width], field)
	}

	putF(wDelta, h.Delta)
	putF(wB, h.B)
	putF(wE, h.E)
	putF(wO, h.O)
	putF(wA, h.A)
	putF(wStla, h.Stla)
	putF(wStlo, h.Stlo)
	putF(wStel, h.Stel)
	putF(wEvla, h.Evla)
	putF(wEvlo, h.Evlo)
	putF(wEvdp, h.Evdp)
	putF(wMag, h.Mag)
	putF(wDist, h.Dist)
	putF(wAz, h.Az)
	putF(wBaz, h.Baz)
	putF(wGcarc, h.Gcarc)
	putF(wCmpaz, h.Cmpaz)
	putF(wCmpinc, h.Cmpinc)

	if len(f.Data) > 0 {
		depmin, depmax, depmen := dataStats(f.Data)
		putF(wDepmin, depmin)
		putF(wDepmax, depmax)
		putF(wDepmen, depmen)
	}

	putI(wNzyear, h.Nzyear)
	putI(wNzjday, h.Nzjday)
	putI(wNzhour, h.Nzhour)
	putI(wNzmin, h.Nzmin)
	putI(wNzsec, h.Nzsec)
	putI(wNzmsec, h.Nzmsec)
	putI(wNvhdr, headerVersion)
	putI(wNpts, len(f.Data))
	putI(wIftype, iftypeTime)
	if h.Iztype != UndefInt && h.Iztype != 0 {
		putI(wIztype, h.Iztype)
	}
	putI(wLeven, 1)
	putI(wLovrok, 1)
	putI(wLcalda, 1)

	putS(oKstnm, 8, h.Kstnm)
	putS(oKevnm, 16, h.Kevnm)
	putS(oKhole, 8, h.Khole)
	putS(oKa, 8, h.Ka)
	putS(oKcmpnm, 8, h.Kcmpnm)
	putS(oKnetwk, 8, h.Knetwk)

	if _, err := w.Write(raw); err != nil {
		return err
	}

	buf := make([]byte, 4*len(f.Data))
	for i, v := range f.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func dataStats(data []float32) (depmin, depmax, depmen float64) {
	depmin = float64(data[0])
	depmax = float64(data[0])
	var sum float64
	for _, v := range data {
		f := float64(v)
		if f < depmin {
			depmin = f
		}
		if f > depmax {
			depmax = f
		}
		sum += f
	}
	return depmin, depmax, sum / float64(len(data))
}

// ToTrace converts the decoded file into a domain trace. Channel and station
// names come from the K* header fields.
func (f *File) ToTrace() domain.Trace {
	data := make([]float64, len(f.Data))
	for i, v := range f.Data {
		data[i] = float64(v)
	}
	return domain.Trace{
		Network: f.Header.Knetwk,
		Station: f.Header.Kstnm,
		Channel: f.Header.Kcmpnm,
		Start:   f.Header.StartTime(),
		Delta:   f.Header.Delta,
		Data:    data,
	}
}

// FromTrace builds a SAC file whose reference time is the trace start
// (IZTYPE=IB, B=0). Callers that reference the event origin instead should
// overwrite the NZ* fields, B, O, and Iztype afterwards.
func FromTrace(tr domain.Trace) *File {
	data := make([]float32, len(tr.Data))
	for i, v := range tr.Data {
		data[i] = float32(v)
	}

	h := NewHeader()
	h.Delta = tr.Delta
	h.Knetwk = tr.Network
	h.Kstnm = tr.Station
	h.Kcmpnm = tr.Channel
	h.Iztype = IztypeBegin
	SetReferenceTime(&h, tr.Start)
	h.B = 0
	if len(tr.Data) > 0 {
		h.E = float64(len(tr.Data)-1) * tr.Delta
	}
	h.Npts = len(tr.Data)

	return &File{Header: h, Data: data}
}

// SetReferenceTime fills the NZ* fields from t (UTC).
func SetReferenceTime(h *Header, t time.Time) {
	t = t.UTC()
	h.Nzyear = t.Year()
	h.Nzjday = t.YearDay()
	h.Nzhour = t.Hour()
	h.Nzmin = t.Minute()
	h.Nzsec = t.Second()
	h.Nzmsec = t.Nanosecond() / int(time.Millisecond)
}
