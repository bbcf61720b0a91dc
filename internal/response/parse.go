package response

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseSACPZ reads a SAC pole-zero file: ZEROS and POLES counts followed by
// real/imaginary pairs, and a CONSTANT line. Pairs not listed are implicit
// zeros at the origin. Lines starting with '*' are comments.
func ParseSACPZ(r io.Reader) (PoleZero, error) {
	var (
		pz       PoleZero
		nZeros   int
		nPoles   int
		section  string
		hasConst bool
	)

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToUpper(fields[0])

		switch key {
		case "ZEROS", "POLES":
			if len(fields) < 2 {
				return PoleZero{}, fmt.Errorf("sacpz: %s line without count", key)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return PoleZero{}, fmt.Errorf("sacpz: bad %s count %q", key, fields[1])
			}
			if key == "ZEROS" {
				nZeros = n
			} else {
				nPoles = n
			}
			section = key
		case "CONSTANT":
			if len(fields) < 2 {
				return PoleZero{}, fmt.Errorf("sacpz: CONSTANT line without value")
			}
			c, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return PoleZero{}, fmt.Errorf("sacpz: bad constant %q", fields[1])
			}
			pz.Constant = c
			hasConst = true
		default:
			if len(fields) < 2 || section == "" {
				return PoleZero{}, fmt.Errorf("sacpz: unexpected line %q", line)
			}
			re, err1 := strconv.ParseFloat(fields[0], 64)
			im, err2 := strconv.ParseFloat(fields[1], 64)
			if err1 != nil || err2 != nil {
				return PoleZero{}, fmt.Errorf("sacpz: bad pair %q", line)
			}
			if section == "ZEROS" {
				pz.Zeros = append(pz.Zeros, complex(re, im))
			} else {
				pz.Poles = append(pz.Poles, complex(re, im))
			}
		}
	}
	if err := scan.Err(); err != nil {
		return PoleZero{}, fmt.Errorf("sacpz: %w", err)
	}
	if !hasConst {
		return PoleZero{}, fmt.Errorf("sacpz: missing CONSTANT")
	}

	// Declared counts exceeding the listed pairs mean zeros at the origin.
	for len(pz.Zeros) < nZeros {
		pz.Zeros = append(pz.Zeros, 0)
	}
	for len(pz.Poles) < nPoles {
		pz.Poles = append(pz.Poles, 0)
	}
	return pz, nil
}

// ParseRESP reads a SEED RESP file, taking the pole-zero stage (blockette
// 053) and the stage-zero sensitivity (blockette 058). The constant is the
// A0 normalization factor times the overall sensitivity.
func ParseRESP(r io.Reader) (PoleZero, error) {
	var (
		pz          PoleZero
		a0          float64
		hasA0       bool
		sensitivity float64
		hasSens     bool
		lastStage   int
	)

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		tag := fields[0]

		switch {
		case tag == "B053F07":
			if hasA0 {
				continue // only the first pole-zero stage
			}
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			if err != nil {
				return PoleZero{}, fmt.Errorf("resp: bad A0 line %q", line)
			}
			a0 = v
			hasA0 = true
		case tag == "B053F10-13" || tag == "B053F15-18":
			// index, real, imag, real error, imag error
			if len(fields) < 4 {
				return PoleZero{}, fmt.Errorf("resp: short pole-zero line %q", line)
			}
			re, err1 := strconv.ParseFloat(fields[2], 64)
			im, err2 := strconv.ParseFloat(fields[3], 64)
			if err1 != nil || err2 != nil {
				return PoleZero{}, fmt.Errorf("resp: bad pole-zero line %q", line)
			}
			if tag == "B053F10-13" {
				pz.Zeros = append(pz.Zeros, complex(re, im))
			} else {
				pz.Poles = append(pz.Poles, complex(re, im))
			}
		case tag == "B058F03":
			n, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				return PoleZero{}, fmt.Errorf("resp: bad stage number %q", line)
			}
			lastStage = n
		case tag == "B058F04":
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			if err != nil {
				return PoleZero{}, fmt.Errorf("resp: bad sensitivity line %q", line)
			}
			// Stage zero carries the overall sensitivity; fall back to the
			// last gain seen for files that omit the summary stage.
			if lastStage == 0 || !hasSens {
				sensitivity = v
				hasSens = true
			}
		}
	}
	if err := scan.Err(); err != nil {
		return PoleZero{}, fmt.Errorf("resp: %w", err)
	}
	if !hasA0 {
		return PoleZero{}, fmt.Errorf("resp: no pole-zero stage found")
	}
	if !hasSens {
		return PoleZero{}, fmt.Errorf("resp: no sensitivity found")
	}
	pz.Constant = a0 * sensitivity
	return pz, nil
}

type xmlPoleZero struct {
	Real float64 `xml:"Real"`
	Imag float64 `xml:"Imaginary"`
}

type xmlStationDoc struct {
	Networks []struct {
		Code     string `xml:"code,attr"`
		Stations []struct {
			Code     string `xml:"code,attr"`
			Channels []struct {
				Code     string `xml:"code,attr"`
				Location string `xml:"locationCode,attr"`
				Response struct {
					Sensitivity struct {
						Value float64 `xml:"Value"`
					} `xml:"InstrumentSensitivity"`
					Stages []struct {
						PolesZeros *struct {
							A0    float64       `xml:"NormalizationFactor"`
							Zeros []xmlPoleZero `xml:"Zero"`
							Poles []xmlPoleZero `xml:"Pole"`
						} `xml:"PolesZeros"`
					} `xml:"Stage"`
				} `xml:"Response"`
			} `xml:"Channel"`
		} `xml:"Station"`
	} `xml:"Network"`
}

// ParseStationXML extracts the pole-zero response for a single channel from
// an FDSN StationXML document. The constant combines the instrument
// sensitivity with the A0 of the first pole-zero stage.
func ParseStationXML(r io.Reader, network, station, channel string) (PoleZero, error) {
	var doc xmlStationDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return PoleZero{}, fmt.Errorf("stationxml: %w", err)
	}

	for _, net := range doc.Networks {
		if net.Code != network {
			continue
		}
		for _, sta := range net.Stations {
			if sta.Code != station {
				continue
			}
			for _, chn := range sta.Channels {
				if chn.Code != channel {
					continue
				}
				for _, stage := range chn.Response.Stages {
					if stage.PolesZeros == nil {
						continue
					}
					pz := PoleZero{
						Constant: chn.Response.Sensitivity.Value * stage.PolesZeros.A0,
					}
					for _, z := range stage.PolesZeros.Zeros {
						pz.Zeros = append(pz.Zeros, complex(z.Real, z.Imag))
					}
					for _, p := range stage.PolesZeros.Poles {
						pz.Poles = append(pz.Poles, complex(p.Real, p.Imag))
					}
					return pz, nil
				}
				return PoleZero{}, fmt.Errorf("stationxml: channel %s.%s.%s has no pole-zero stage", network, station, channel)
			}
		}
	}
	return PoleZero{}, fmt.Errorf("stationxml: no response for %s.%s.%s", network, station, channel)
}

// Load finds and parses the response file for a channel under dir. Mode
// selects the file format: "sacpz", "resp", "xml", or empty to try each in
// that order.
func Load(dir, mode, network, station, channel string) (PoleZero, error) {
	modes := []string{mode}
	if mode == "" {
		modes = []string{"sacpz", "resp", "xml"}
	}

	var firstErr error
	for _, m := range modes {
		path, err := findFile(dir, m, network, station, channel)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return PoleZero{}, err
		}
		defer f.Close()

		switch m {
		case "sacpz":
			return ParseSACPZ(f)
		case "resp":
			return ParseRESP(f)
		case "xml":
			return ParseStationXML(f, network, station, channel)
		default:
			return PoleZero{}, fmt.Errorf("unknown response mode %q", m)
		}
	}
	return PoleZero{}, firstErr
}

func findFile(dir, mode, network, station, channel string) (string, error) {
	var patterns []string
	switch mode {
	case "sacpz":
		patterns = []string{
			fmt.Sprintf("SAC_PZs_%s_%s_%s*", network, station, channel),
			fmt.Sprintf("SACPZ.%s.%s.*.%s", network, station, channel),
			fmt.Sprintf("*PZ*%s*%s*%s*", network, station, channel),
		}
	case "resp":
		patterns = []string{
			fmt.Sprintf("RESP.%s.%s.*.%s", network, station, channel),
			fmt.Sprintf("RESP*%s*%s*%s*", network, station, channel),
		}
	case "xml":
		patterns = []string{
			fmt.Sprintf("%s.%s.xml", network, station),
			fmt.Sprintf("*%s*%s*.xml", network, station),
			"*.xml",
		}
	default:
		return "", fmt.Errorf("unknown response mode %q", mode)
	}

	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no %s response file for %s.%s.%s in %s", mode, network, station, channel, dir)
}
