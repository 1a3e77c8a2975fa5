package sim

import (
	"encoding/json"
	"os"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// FileWriter writes step stats, events and deliveries to JSONL files.
type FileWriter struct {
	statsFile    *os.File
	eventFile    *os.File
	deliveryFile *os.File
	statsEnc     *json.Encoder
	eventEnc     *json.Encoder
	deliveryEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. eventPath or deliveryPath may be empty to skip those logs.
func NewFileWriter(statsPath, eventPath, deliveryPath string) (*FileWriter, error) {
	sf, err := os.Create(statsPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{statsFile: sf, statsEnc: json.NewEncoder(sf)}
	if eventPath != "" {
		ef, err := os.Create(eventPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.eventFile = ef
		fw.eventEnc = json.NewEncoder(ef)
	}
	if deliveryPath != "" {
		df, err := os.Create(deliveryPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.deliveryFile = df
		fw.deliveryEnc = json.NewEncoder(df)
	}
	return fw, nil
}

// Write logs a single step.
func (f *FileWriter) Write(st StepStats) error {
	return f.statsEnc.Encode(st)
}

// WriteEvents logs finished transmissions, if enabled.
func (f *FileWriter) WriteEvents(events []Event) error {
	if f.eventEnc == nil {
		return nil
	}
	for _, e := range events {
		if err := f.eventEnc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteDeliveries logs the delivery record, if enabled.
func (f *FileWriter) WriteDeliveries(rows []lora.Delivery) error {
	if f.deliveryEnc == nil {
		return nil
	}
	for _, d := range rows {
		if err := f.deliveryEnc.Encode(d); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, file := range []*os.File{f.statsFile, f.eventFile, f.deliveryFile} {
		if file == nil {
			continue
		}
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
