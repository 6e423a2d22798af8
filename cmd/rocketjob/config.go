package main

type Config struct {
	Debug bool   `help:"Enable debug logging (all categories)"`
	Path  string `name:"slice-storage" alias:"path" default:"./slices.db" help:"Path to slice storage directory"`

	SliceSize int  `name:"slice-size" default:"100" help:"Records per slice"`
	NoSync    bool `name:"no-sync" help:"Skip fsync on ingest commits (claims always sync)"`

	HTTPListen    string `name:"http-listen" default:":9600" help:"HTTP API TCP address (use 'none' to disable)"`
	HTTPSocket    string `name:"http-socket" default:"./rocketjob.sock" help:"HTTP API unix socket (use 'none' to disable)"`
	MetricsListen string `name:"metrics-listen" default:"none" help:"Prometheus endpoint address (use 'none' to disable)"`
	PprofPort     string `name:"pprof-port" help:"Port for pprof debugging endpoint"`

	ClaimRPS   int `name:"claim-rps" default:"0" help:"Per-worker claim rate limit in requests/second (0 = unlimited)"`
	ClaimBurst int `name:"claim-burst" default:"0" help:"Per-worker claim burst (defaults to claim-rps)"`

	Upload      string `help:"Upload a file as slices, then exit"`
	Transforms  string `help:"Explicit transform chain for -upload, outermost-last (e.g. 'gz' or 'gz,enc'); overrides suffix inference"`
	Delimiter   string `help:"Line delimiter for -upload (default: auto-detect)"`
	BufferSize  int    `name:"buffer-size" default:"65536" help:"Line splitter lookahead buffer in bytes"`
	Encoding    string `default:"utf-8" help:"Canonical text encoding for uploaded records ('none' to disable normalization)"`
	KeepUnprint bool   `name:"keep-non-printable" help:"Keep non-printable characters in uploaded records"`

	UploadRange string `name:"upload-range" help:"Upload an integer range as slices ('first:last'), then exit"`
	Reverse     bool   `help:"Emit -upload-range sub-ranges from the high end downward"`

	UploadTable string `name:"upload-table" help:"Upload rows of a Postgres table as slices, then exit"`
	PGDSN       string `name:"pg-dsn" help:"Postgres connection string for -upload-table"`
	Columns     string `help:"Column projection for -upload-table (comma-separated)"`
	KeyColumn   string `name:"key-column" default:"id" help:"Ordering column that drives the -upload-table cursor"`
	WhereClause string `name:"where" help:"Optional SQL predicate for -upload-table"`

	RequeueFailed  bool   `name:"requeue-failed" help:"Return all failed slices to the queue, then exit"`
	RequeueRunning string `name:"requeue-running" help:"Return running slices owned by this worker prefix to the queue, then exit"`
	Failures       bool   `help:"Print failed records, then exit"`
	Counts         bool   `help:"Print slice counts per state, then exit"`

	LogFilter []string `name:"log-filter" help:"Log category filter (comma-separated)"`
	LogFile   string   `name:"log-file" help:"Log output file path (logs to both stdout and file when set)"`
}
