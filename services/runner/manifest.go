package runner

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"strategylab/services/engine"
	"strategylab/services/market"
	"strategylab/services/strategy"
)

// EngineVersion is bumped whenever simulation semantics change so cached results expire.
const EngineVersion = "1.0.0"

// Manifest records everything needed to reproduce a run.
type Manifest struct {
	JobID         string         `json:"job_id"`
	Fingerprint   string         `json:"fingerprint"`
	StrategyHash  string         `json:"strategy_hash"`
	DataChecksum  string         `json:"data_checksum"`
	Symbol        string         `json:"symbol"`
	Timeframe     string         `json:"timeframe"`
	Options       engine.Options `json:"options"`
	Bars          int            `json:"bars"`
	EngineVersion string         `json:"engine_version"`
	CreatedAt     time.Time      `json:"created_at"`
}

func hashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// StrategyHash is the sha256 of the definition's JSON encoding. Params are maps, which
// encoding/json writes with sorted keys, so equal definitions hash equally.
func StrategyHash(def strategy.Definition) (string, error) {
	h, err := hashJSON(def)
	if err != nil {
		return "", fmt.Errorf("hash strategy: %w", err)
	}
	return h, nil
}

// DataChecksum hashes the candle values bit-exactly.
func DataChecksum(candles []market.Candle) string {
	h := sha256.New()
	var buf [8]byte
	for _, c := range candles {
		binary.LittleEndian.PutUint64(buf[:], uint64(c.Timestamp.UnixMilli()))
		h.Write(buf[:])
		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint identifies a run by strategy, data and options; it keys the result cache.
func Fingerprint(strategyHash, dataChecksum string, opts engine.Options) (string, error) {
	return hashJSON(struct {
		Strategy string         `json:"strategy"`
		Data     string         `json:"data"`
		Options  engine.Options `json:"options"`
		Engine   string         `json:"engine"`
	}{strategyHash, dataChecksum, opts, EngineVersion})
}

func newManifest(jobID, symbol string, def strategy.Definition, candles []market.Candle, opts engine.Options) (Manifest, error) {
	sh, err := StrategyHash(def)
	if err != nil {
		return Manifest{}, err
	}
	dc := DataChecksum(candles)
	fp, err := Fingerprint(sh, dc, opts)
	if err != nil {
		return Manifest{}, fmt.Errorf("fingerprint: %w", err)
	}
	return Manifest{
		JobID:         jobID,
		Fingerprint:   fp,
		StrategyHash:  sh,
		DataChecksum:  dc,
		Symbol:        symbol,
		Timeframe:     string(opts.Timeframe),
		Options:       opts,
		Bars:          len(candles),
		EngineVersion: EngineVersion,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
