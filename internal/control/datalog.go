package control

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sweeney/sous-vide/internal/pid"
)

var datalogHeader = []string{"time", "setpoint", "temp", "error", "on_time", "p", "i", "d"}

// dataLog appends one CSV row per duty-cycle window.
type dataLog struct {
	f *os.File
	w *csv.Writer
}

func openDataLog(dir string, now time.Time) (*dataLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create datalog dir: %w", err)
	}
	name := filepath.Join(dir, "datalog-"+now.Format("2006-01-02_150405")+".csv")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open datalog: %w", err)
	}
	d := &dataLog{f: f, w: csv.NewWriter(f)}
	if err := d.write(datalogHeader); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// Record writes a window row. In manual mode only the time and on time
// columns carry values.
func (d *dataLog) Record(now time.Time, manual bool, setpoint *float64, temp float64, onTime time.Duration, t pid.Terms) error {
	row := []string{now.Format(time.RFC3339), "-", "-", "-", ms(onTime), "-", "-", "-"}
	if !manual {
		if setpoint != nil {
			row[1] = num(*setpoint)
		}
		row[2] = num(temp)
		row[3] = num(t.Error)
		row[5] = num(t.P)
		row[6] = num(t.I)
		row[7] = num(t.D)
	}
	return d.write(row)
}

func (d *dataLog) write(row []string) error {
	if err := d.w.Write(row); err != nil {
		return err
	}
	d.w.Flush()
	return d.w.Error()
}

func (d *dataLog) Close() error {
	d.w.Flush()
	return d.f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func ms(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
