package sinks

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/LLNL/caliper-go/internal/config"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// KafkaSink publishes stream bytes to a Kafka topic, one message per
// line. Lines are buffered until a newline completes them, since
// stream.Writer writes one record per Write call but a Kafka message
// should hold exactly one record, not a partial one.
type KafkaSink struct {
	cfg    config.KafkaSinkConfig
	logger *logrus.Entry

	producer sarama.AsyncProducer

	mu      sync.Mutex
	partial bytes.Buffer

	resultsWg sync.WaitGroup
}

// NewKafkaSink configures a sarama.AsyncProducer from cfg, wiring
// compression, batching and SASL/SCRAM auth the way the teacher's
// Kafka sink does.
func NewKafkaSink(cfg config.KafkaSinkConfig, logger *logrus.Entry) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, cerrors.New(cerrors.CodeConfigError, "sinks", "NewKafkaSink", "no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, cerrors.New(cerrors.CodeConfigError, "sinks", "NewKafkaSink", "no topic configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	switch strings.ToLower(cfg.Compression) {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	default:
		saramaConfig.Producer.Compression = sarama.CompressionNone
	}

	if cfg.FlushBytes > 0 {
		saramaConfig.Producer.Flush.Bytes = cfg.FlushBytes
	}

	if cfg.SASL.Enabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = cfg.SASL.Username
		saramaConfig.Net.SASL.Password = cfg.SASL.Password

		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
			}
		case "SCRAM-SHA-512":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
			}
		}
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, cerrors.New(cerrors.CodeIoError, "sinks", "NewKafkaSink", "create producer").Wrap(err)
	}

	logger.WithFields(logrus.Fields{
		"brokers":     cfg.Brokers,
		"topic":       cfg.Topic,
		"compression": cfg.Compression,
	}).Info("kafka sink configured")

	return &KafkaSink{cfg: cfg, logger: logger, producer: producer}, nil
}

// Start drains the producer's Successes/Errors channels so they never
// back up and block sends.
func (k *KafkaSink) Start(ctx context.Context) error {
	k.resultsWg.Add(1)
	go func() {
		defer k.resultsWg.Done()
		for {
			select {
			case _, ok := <-k.producer.Successes():
				if !ok {
					return
				}
			case err, ok := <-k.producer.Errors():
				if !ok {
					return
				}
				if err != nil {
					k.logger.WithError(err.Err).Warn("kafka sink publish failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Write buffers p and publishes each newline-terminated line as a
// Kafka message, leaving any trailing partial line buffered for the
// next call.
func (k *KafkaSink) Write(p []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.partial.Write(p)
	lines := drainLines(&k.partial)
	for _, line := range lines {
		k.producer.Input() <- &sarama.ProducerMessage{
			Topic: k.cfg.Topic,
			Value: sarama.ByteEncoder(line),
		}
	}
	return len(p), nil
}

// drainLines pulls every complete newline-terminated line out of buf,
// stripping the trailing newline, and leaves any incomplete trailing
// fragment buffered for the next call.
func drainLines(buf *bytes.Buffer) [][]byte {
	var lines [][]byte
	for {
		line, err := buf.ReadBytes('\n')
		if err != nil {
			buf.Reset()
			buf.Write(line)
			return lines
		}
		lines = append(lines, line[:len(line)-1])
	}
}

// Stop closes the producer and waits for the result-draining
// goroutine to exit.
func (k *KafkaSink) Stop() error {
	err := k.producer.Close()
	k.resultsWg.Wait()
	if err != nil {
		return cerrors.New(cerrors.CodeIoError, "sinks", "Stop", "close producer").Wrap(err)
	}
	return nil
}
