// Package journal appends every calibration command to a Kafka topic so
// other services can audit or replay calibration history.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/sweeney/thermo-calibrator/internal/calibrator"
)

// Record is one journal entry, keyed by location on the topic.
type Record struct {
	ID                    string  `json:"id"`
	Location              string  `json:"location"`
	Topic                 string  `json:"topic"`
	Previous              float64 `json:"previous"`
	Calibration           float64 `json:"calibration"`
	Average               float64 `json:"average"`
	ThermostatTemperature float64 `json:"thermostat_temperature"`
	Timestamp             string  `json:"timestamp"`
}

// NewRecord builds the journal entry for a commanded result.
func NewRecord(res calibrator.Result) (Record, bool) {
	if res.Command == nil {
		return Record{}, false
	}
	r := Record{
		ID:          uuid.NewString(),
		Location:    res.Location,
		Topic:       res.Command.Topic,
		Calibration: res.Command.Calibration,
		Timestamp:   res.Time.UTC().Format(time.RFC3339Nano),
	}
	if res.Decision != nil {
		r.Previous = res.Decision.Previous
	}
	if res.Aggregate != nil {
		r.Average = res.Aggregate.Average
	}
	if th := res.State.Thermostat; th != nil {
		r.ThermostatTemperature = th.Temperature
	}
	return r, true
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	queueSize    = 64
	writeTimeout = 10 * time.Second
)

var errStopped = errors.New("journal stopped")

// Journal asynchronously writes commanded results. It implements
// calibrator.Observer; Observe never blocks the engine.
type Journal struct {
	writer messageWriter
	queue  chan Record

	wg       sync.WaitGroup
	mu       sync.Mutex
	stopped  bool
	stopOnce sync.Once
}

// New creates a Journal writing to topic on brokers. With no brokers the
// journal is disabled and Observe does nothing.
func New(brokers []string, topic string) *Journal {
	if len(brokers) == 0 {
		log.Printf("journal: disabled (no brokers)")
		return &Journal{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newJournal(w)
}

func newJournal(w messageWriter) *Journal {
	j := &Journal{writer: w, queue: make(chan Record, queueSize)}
	j.wg.Add(1)
	go j.run()
	return j
}

// Enabled reports whether records are written anywhere.
func (j *Journal) Enabled() bool {
	return j != nil && j.writer != nil
}

// Observe queues a record for commanded results.
func (j *Journal) Observe(res calibrator.Result) {
	if !j.Enabled() {
		return
	}
	rec, ok := NewRecord(res)
	if !ok {
		return
	}
	if err := j.enqueue(rec); err != nil {
		log.Printf("journal: dropping record for %s: %v", rec.Location, err)
	}
}

// DataQuality is not journaled.
func (j *Journal) DataQuality(identifier, location, problem string) {}

func (j *Journal) enqueue(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		return errStopped
	}
	select {
	case j.queue <- rec:
		return nil
	default:
		return errors.New("queue full")
	}
}

func (j *Journal) run() {
	defer j.wg.Done()
	for rec := range j.queue {
		value, err := json.Marshal(rec)
		if err != nil {
			log.Printf("journal: encode %s: %v", rec.ID, err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = j.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.Location), Value: value})
		cancel()
		if err != nil {
			log.Printf("journal: write %s: %v", rec.ID, err)
		}
	}
}

// Close flushes queued records and closes the writer.
func (j *Journal) Close() error {
	if !j.Enabled() {
		return nil
	}
	var err error
	j.stopOnce.Do(func() {
		j.mu.Lock()
		j.stopped = true
		close(j.queue)
		j.mu.Unlock()
		j.wg.Wait()
		err = j.writer.Close()
	})
	return err
}
