package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Tenant       string
	Password     string
	Duration     time.Duration
	Workers      int
	Patients     int
	Days         int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	RaceSize     int
}

type session struct {
	id    string
	token string
}

type booking struct {
	id     string
	doctor string
}

type DataPool struct {
	Patients []session
	Doctors  []session

	mu           sync.Mutex
	appointments []booking
}

func (dp *DataPool) AddAppointment(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

// TakeAppointment removes and returns a random booked appointment.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booking{}, false
	}
	idx := rng.Intn(len(dp.appointments))
	b := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return b, true
}

func (dp *DataPool) Doctor(id string) (session, bool) {
	for _, d := range dp.Doctors {
		if d.id == id {
			return d, true
		}
	}
	return session{}, false
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], pct(50), pct(95)
}

type Metrics struct {
	Booking   OperationMetrics
	Cancel    OperationMetrics
	ReadSlots OperationMetrics
	ListOwn   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

// simulate drives a running api-server with the users created by seed:
// a same-slot race first, then a timed mixed workload.
func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console"), os.Stdout)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := sim.loadDataPool(ctx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	sim.pool = pool
	logger.Info().Int("patients", len(pool.Patients)).Int("doctors", len(pool.Doctors)).Msg("data pool loaded")

	if err := sim.Race(context.Background()); err != nil {
		logger.Error().Err(err).Msg("race check failed")
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Tenant:       getEnv("SIM_TENANT", getEnv("DEFAULT_TENANT", "default")),
		Password:     getEnv("SEED_PASSWORD", "password123"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Patients:     getInt("SIM_PATIENTS", 50),
		Days:         getInt("SEED_DAYS", 14),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.5),
		RaceSize:     getInt("SIM_RACE_SIZE", 20),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SEED_DAYS must be > 0")
	}
	return nil
}

func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	patients, err := s.login(ctx, "patient", s.config.Patients)
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("no seeded patients could log in, run seed first")
	}

	var listed struct {
		Doctors []struct {
			ID string `json:"id"`
		} `json:"doctors"`
	}
	if _, err := s.call(ctx, http.MethodGet, "/doctors", patients[0].token, nil, &listed); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	doctors, err := s.login(ctx, "doctor", len(listed.Doctors))
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("no seeded doctors could log in, run seed first")
	}

	return &DataPool{Patients: patients, Doctors: doctors}, nil
}

// login signs in the seeded users role1..roleN and stops at the first one
// that does not exist.
func (s *Simulator) login(ctx context.Context, role string, n int) ([]session, error) {
	var out []session
	for i := 1; i <= n; i++ {
		var resp struct {
			Token string `json:"token"`
			User  struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		status, err := s.call(ctx, http.MethodPost, "/login", "", map[string]string{
			"email":    fmt.Sprintf("%s%d@seed.clinic", role, i),
			"password": s.config.Password,
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("login %s%d: %w", role, i, err)
		}
		if status != http.StatusOK {
			break
		}
		out = append(out, session{id: resp.User.ID, token: resp.Token})
	}
	return out, nil
}

// Race has RaceSize patients book the same free slot at once and checks
// that exactly one of them wins.
func (s *Simulator) Race(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		doctor, date string
		slots        []string
	)
	for attempt := 0; attempt < 20 && len(slots) == 0; attempt++ {
		doctor, date = s.randomDoctorDate(rng)
		slots = s.freeSlots(ctx, s.pool.Patients[0].token, doctor, date)
	}
	if len(slots) == 0 {
		return fmt.Errorf("no free slot found to race on")
	}
	slot := slots[0]

	var (
		wg        sync.WaitGroup
		booked    atomic.Int64
		conflicts atomic.Int64
		failures  atomic.Int64
		start     = make(chan struct{})
	)
	for i := 0; i < s.config.RaceSize; i++ {
		p := s.pool.Patients[i%len(s.pool.Patients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, id := s.book(ctx, p, doctor, date, slot)
			switch status {
			case http.StatusCreated:
				booked.Add(1)
				s.pool.AddAppointment(booking{id: id, doctor: doctor})
			case http.StatusConflict:
				conflicts.Add(1)
			default:
				failures.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	ev := s.log.Info()
	if booked.Load() != 1 {
		ev = s.log.Error()
	}
	ev.Str("doctor_id", doctor).
		Str("date", date).
		Str("slot", slot).
		Int64("booked", booked.Load()).
		Int64("conflicts", conflicts.Load()).
		Int64("errors", failures.Load()).
		Msg("same-slot race finished")

	if booked.Load() != 1 {
		return fmt.Errorf("expected exactly one booking, got %d", booked.Load())
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadSlots(ctx, rng)
				} else {
					s.doListOwn(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctor, date := s.randomDoctorDate(rng)
	slot := seedSlots[rng.Intn(len(seedSlots))]

	start := time.Now()
	status, id := s.book(ctx, p, doctor, date, slot)
	latency := time.Since(start)

	if status == http.StatusCreated {
		s.pool.AddAppointment(booking{id: id, doctor: doctor})
	}
	if ctx.Err() == nil {
		s.metrics.Booking.Record(latency, status == http.StatusCreated, status == http.StatusConflict)
	}
}

// doCancel has the owning doctor cancel a booked appointment, freeing its slot.
func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}
	doc, ok := s.pool.Doctor(b.doctor)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPatch, "/appointment/"+b.id+"/status", doc.token, map[string]string{
		"status": "cancelled",
	}, nil)
	latency := time.Since(start)

	if ctx.Err() == nil {
		s.metrics.Cancel.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
	}
}

func (s *Simulator) doReadSlots(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctor, date := s.randomDoctorDate(rng)

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/available-slots?doctorId="+doctor+"&date="+date, p.token, nil, nil)
	latency := time.Since(start)

	if ctx.Err() == nil {
		ok := err == nil && (status == http.StatusOK || status == http.StatusNotFound)
		s.metrics.ReadSlots.Record(latency, ok, false)
	}
}

func (s *Simulator) doListOwn(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/booked-slots?limit=20", p.token, nil, nil)
	latency := time.Since(start)

	if ctx.Err() == nil {
		s.metrics.ListOwn.Record(latency, err == nil && status == http.StatusOK, false)
	}
}

var seedSlots = []string{"09:00 AM", "10:00 AM", "11:00 AM", "01:00 PM", "03:00 PM"}

func (s *Simulator) randomDoctorDate(rng *rand.Rand) (string, string) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))].id
	date := calendar.Today(time.Now()).AddDate(0, 0, rng.Intn(s.config.Days))
	return doctor, calendar.Format(date)
}

func (s *Simulator) freeSlots(ctx context.Context, token, doctor, date string) []string {
	var out struct {
		Slots []string `json:"slots"`
	}
	status, err := s.call(ctx, http.MethodGet, "/available-slots?doctorId="+doctor+"&date="+date, token, nil, &out)
	if err != nil || status != http.StatusOK {
		return nil
	}
	return out.Slots
}

func (s *Simulator) book(ctx context.Context, p session, doctor, date, slot string) (int, string) {
	var out struct {
		Appointment struct {
			ID string `json:"id"`
		} `json:"appointment"`
	}
	status, err := s.call(ctx, http.MethodPost, "/book-slot", p.token, map[string]string{
		"doctorId": doctor,
		"date":     date,
		"timeSlot": slot,
	}, &out)
	if err != nil {
		return 0, ""
	}
	return status, out.Appointment.ID
}

// call sends a JSON request and decodes a JSON response into out when out is
// not nil and the call succeeded.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", s.config.Tenant)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Available slots", &s.metrics.ReadSlots)
	printOperationReport("List own appointments", &s.metrics.ListOwn)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
