package roieval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	resultsHeader   = "Time (s), Total ROI cluster, ROI key count"
	resultsGTHeader = ", Detected fruits, True positive keys, False positive keys, Ground truth keys"
	episodesHeader  = "Episode, Samples, Duration (s), Mean ROI cluster, Max ROI cluster, Final ROI key count, Detected fruits"
)

// ResultsLog appends one row per evaluation sample. Every row is flushed as
// it is written.
type ResultsLog struct {
	w      *bufio.Writer
	closer io.Closer
	withGT bool
	rows   int
}

// NewResultsLog writes the header to w. Ground-truth columns are included
// when withGT is set.
func NewResultsLog(w io.Writer, withGT bool) (*ResultsLog, error) {
	return newResultsLog(w, withGT, true)
}

func newResultsLog(w io.Writer, withGT, writeHeader bool) (*ResultsLog, error) {
	l := &ResultsLog{w: bufio.NewWriter(w), withGT: withGT}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	if !writeHeader {
		return l, nil
	}
	header := resultsHeader
	if withGT {
		header += resultsGTHeader
	}
	if _, err := fmt.Fprintln(l.w, header); err != nil {
		return nil, err
	}
	return l, l.w.Flush()
}

// OpenResultsLog opens path for appending. The header is written only when
// the file is new, so rows from an earlier start in the same run are kept.
func OpenResultsLog(path string, withGT bool) (*ResultsLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat results log: %w", err)
	}
	l, err := newResultsLog(f, withGT, info.Size() == 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("write results header: %w", err)
	}
	return l, nil
}

// Append writes one sample.
func (l *ResultsLog) Append(p EvaluationParameters) error {
	if _, err := fmt.Fprintf(l.w, "%.3f, %d, %d", p.ElapsedTime.Seconds(), p.TotalROIClusters, p.ROIKeyCount); err != nil {
		return err
	}
	if l.withGT {
		if _, err := fmt.Fprintf(l.w, ", %d, %d, %d, %d", p.DetectedObjects, p.TruePositiveKeys, p.FalsePositiveKeys, p.GroundTruthKeys); err != nil {
			return err
		}
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	l.rows++
	return l.w.Flush()
}

// Rows returns the number of samples written.
func (l *ResultsLog) Rows() int {
	return l.rows
}

// Close flushes and closes the underlying file, if any.
func (l *ResultsLog) Close() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// EpisodeSummary aggregates the samples of one episode.
type EpisodeSummary struct {
	Episode         int
	Samples         int
	Duration        time.Duration
	MeanClusters    float64
	MaxClusters     float64
	FinalROIKeys    int
	DetectedObjects int
}

// SummarizeEpisode reduces an episode's series.
func SummarizeEpisode(episode int, series []EvaluationParameters) EpisodeSummary {
	s := EpisodeSummary{Episode: episode, Samples: len(series)}
	if len(series) == 0 {
		return s
	}
	clusters := make([]float64, len(series))
	for i, p := range series {
		clusters[i] = float64(p.TotalROIClusters)
	}
	last := series[len(series)-1]
	s.Duration = last.ElapsedTime
	s.MeanClusters = stat.Mean(clusters, nil)
	s.MaxClusters = floats.Max(clusters)
	s.FinalROIKeys = last.ROIKeyCount
	s.DetectedObjects = last.DetectedObjects
	return s
}

// EpisodeLog appends one row per finished episode.
type EpisodeLog struct {
	w      *bufio.Writer
	closer io.Closer
}

// OpenEpisodeLog opens path for appending, writing the header if the file is new.
func OpenEpisodeLog(path string) (*EpisodeLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open episode log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat episode log: %w", err)
	}
	l := &EpisodeLog{w: bufio.NewWriter(f), closer: f}
	if info.Size() == 0 {
		if _, err := fmt.Fprintln(l.w, episodesHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, l.w.Flush()
}

// Append writes one summary row.
func (l *EpisodeLog) Append(s EpisodeSummary) error {
	_, err := fmt.Fprintf(l.w, "%d, %d, %.3f, %.3f, %.0f, %d, %d\n",
		s.Episode, s.Samples, s.Duration.Seconds(), s.MeanClusters, s.MaxClusters, s.FinalROIKeys, s.DetectedObjects)
	if err != nil {
		return err
	}
	return l.w.Flush()
}

// Close flushes and closes the file.
func (l *EpisodeLog) Close() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.closer.Close()
}
