// Package domain models seismic events, stations, and waveform segments for
// the SKS extraction pipeline.
//
// # Data Sources
//
// Events come from an earthquake catalog file with columns origin_time, evla,
// evlo, evdp (km), and mag. Continuous waveforms live in a day-file archive
// produced by the acquisition stage:
//
//	rawdata/{net}_day_sac/{net}.{sta}/yyyy.mm.dd.{net}.{sta}.{chn}.sac
//
// Station coordinates are read from SAC headers (STLA/STLO/STEL) of the day
// files themselves, so no station metadata service is needed at cut time.
//
// # Component Conventions
//
// A channel code's last character names the component: Z is vertical, N/E are
// geographic horizontals, and 1/2 are unoriented horizontals used when the
// sensor azimuths are unknown. A usable record is Z+(N,E) or Z+(1,2); anything
// less is skipped by QC rather than treated as an error.
//
// # Timing
//
// All times are UTC. The theoretical phase arrival is origin time plus the
// travel time interpolated from the embedded model tables. Output SAC headers
// use the event origin as the reference time (NZ* fields), so B is the segment
// start relative to origin, O is 0, and A marks the phase arrival.
//
// # ID Generation
//
// Segment IDs are deterministic SHA-256 hashes of
// net|sta|chan|phase|origin-time. Re-cutting the same event at the same
// station yields the same ID, which keeps downstream consumers idempotent
// under replays. See [SegmentID].
package domain
