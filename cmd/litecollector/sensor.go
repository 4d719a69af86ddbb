package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jirevwe/litecollector/job"
)

// collectReading pretends to read a sensor: it takes a little while, the
// sensor is sometimes offline and sometimes returns garbage.
func collectReading(ctx context.Context, requestID string, payload job.Payload) (*job.Result, error) {
	sensor, _ := payload["sensor"].(string)

	select {
	case <-time.After(time.Duration(rand.Intn(100)) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	n := rand.Intn(10)
	switch {
	case n == 0:
		r := job.NewResult(requestID, sensor, "", nil)
		return r.WithError(job.NewError("sensorOffline").With("sensor", sensor)), nil
	case n == 1:
		return nil, fmt.Errorf("sensor %s returned a malformed reading", sensor)
	}

	quality := "complete"
	if n < 4 {
		quality = "partial"
	}

	return job.NewResult(requestID, sensor, quality, job.Payload{
		"celsius": 18 + rand.Float64()*10,
	}), nil
}
