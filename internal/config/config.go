package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Cognito   CognitoConfig
	AWS       AWSConfig
	Storage   StorageConfig
	Dynamo    DynamoConfig
	SNS       SNSConfig
	Polly     PollyConfig
	Bedrock   BedrockConfig
	PDF       PDFConfig
	Intake    IntakeConfig
	Jobs      JobsConfig
	Synthesis SynthesisConfig
	Queue     QueueConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	UploadPerHour int
	TrackPerMin   int
}

// CognitoConfig identifies the user pool whose tokens the API accepts.
type CognitoConfig struct {
	Issuer   string
	ClientID string
}

type AWSConfig struct {
	Region          string
	Endpoint        string // optional override, e.g. localstack
	AccessKeyID     string
	SecretAccessKey string
}

type StorageConfig struct {
	Bucket string
}

type DynamoConfig struct {
	JobsTable     string
	OwnerIndex    string
	ProfilesTable string
}

type SNSConfig struct {
	TopicArn  string
	TopicName string
}

type PollyConfig struct {
	MaxChars int
	Engine   string
}

type BedrockConfig struct {
	BaseModelID string
	MaxTokens   int
}

type PDFConfig struct {
	DPI float64
}

type IntakeConfig struct {
	MaxPDFBytes  int
	MaxTextChars int
	MaxPages     int
}

type JobsConfig struct {
	TTLHours int
}

type SynthesisConfig struct {
	ConcatChunks bool
}

type QueueConfig struct {
	Concurrency int
	// Mode selects how stages hand off work: "asynq", "platform" or "inline".
	Mode string
}

type GatewayConfig struct {
	Enabled bool
}

// Configured reports whether a real AWS region is available.
func (c AWSConfig) Configured() bool {
	return c.Region != ""
}

func Load() (*Config, error) {
	// Optional .env for local runs; real environment always wins.
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("AWS_ACCESS_KEY_ID")
	readSecret("AWS_SECRET_ACCESS_KEY")
	readSecret("COGNITO_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("ratelimit.track_per_min", "RATELIMIT_TRACK_PER_MIN")
	_ = v.BindEnv("cognito.issuer", "COGNITO_ISSUER")
	_ = v.BindEnv("cognito.client_id", "COGNITO_CLIENT_ID")
	_ = v.BindEnv("aws.region", "AWS_REGION")
	_ = v.BindEnv("aws.endpoint", "AWS_ENDPOINT_URL")
	_ = v.BindEnv("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
	_ = v.BindEnv("dynamo.jobs_table", "DYNAMODB_TABLE")
	_ = v.BindEnv("dynamo.owner_index", "DYNAMODB_OWNER_INDEX")
	_ = v.BindEnv("dynamo.profiles_table", "DYNAMODB_PROFILES_TABLE")
	_ = v.BindEnv("sns.topic_arn", "SNS_TOPIC_ARN")
	_ = v.BindEnv("sns.topic_name", "SNS_TOPIC_NAME")
	_ = v.BindEnv("polly.max_chars", "POLLY_MAX_CHARS")
	_ = v.BindEnv("polly.engine", "POLLY_ENGINE")
	_ = v.BindEnv("bedrock.base_model_id", "BEDROCK_BASE_MODEL_ID")
	_ = v.BindEnv("bedrock.max_tokens", "BEDROCK_MAX_TOKENS")
	_ = v.BindEnv("pdf.dpi", "PDF_DPI")
	_ = v.BindEnv("intake.max_pdf_bytes", "INTAKE_MAX_PDF_BYTES")
	_ = v.BindEnv("intake.max_text_chars", "INTAKE_MAX_TEXT_CHARS")
	_ = v.BindEnv("intake.max_pages", "INTAKE_MAX_PAGES")
	_ = v.BindEnv("jobs.ttl_hours", "JOBS_TTL_HOURS")
	_ = v.BindEnv("synthesis.concat_chunks", "SYNTHESIS_CONCAT_CHUNKS")
	_ = v.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = v.BindEnv("queue.mode", "QUEUE_MODE")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("ratelimit.upload_per_hour", 30)
	v.SetDefault("ratelimit.track_per_min", 120)

	v.SetDefault("storage.bucket", "tts-bucket")
	v.SetDefault("dynamo.jobs_table", "tts-requests")
	v.SetDefault("dynamo.owner_index", "")
	v.SetDefault("dynamo.profiles_table", "UserProfiles")
	v.SetDefault("sns.topic_name", "tts-processing-topic")

	// SynthesizeSpeech accepts at most 3000 billed characters per call.
	v.SetDefault("polly.max_chars", 3000)
	v.SetDefault("polly.engine", "standard")
	v.SetDefault("bedrock.base_model_id", "anthropic.claude-3-5-sonnet-20240620-v1:0")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("pdf.dpi", 200.0)

	v.SetDefault("intake.max_pdf_bytes", 10*1024*1024)
	v.SetDefault("intake.max_text_chars", 100000)
	v.SetDefault("intake.max_pages", 50)
	v.SetDefault("jobs.ttl_hours", 84)
	v.SetDefault("synthesis.concat_chunks", false)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.mode", "asynq")
	v.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: v.GetInt("ratelimit.upload_per_hour"),
			TrackPerMin:   v.GetInt("ratelimit.track_per_min"),
		},
		Cognito: CognitoConfig{
			Issuer:   v.GetString("cognito.issuer"),
			ClientID: v.GetString("cognito.client_id"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("aws.region"),
			Endpoint:        v.GetString("aws.endpoint"),
			AccessKeyID:     v.GetString("aws.access_key_id"),
			SecretAccessKey: v.GetString("aws.secret_access_key"),
		},
		Storage: StorageConfig{
			Bucket: v.GetString("storage.bucket"),
		},
		Dynamo: DynamoConfig{
			JobsTable:     v.GetString("dynamo.jobs_table"),
			OwnerIndex:    v.GetString("dynamo.owner_index"),
			ProfilesTable: v.GetString("dynamo.profiles_table"),
		},
		SNS: SNSConfig{
			TopicArn:  v.GetString("sns.topic_arn"),
			TopicName: v.GetString("sns.topic_name"),
		},
		Polly: PollyConfig{
			MaxChars: v.GetInt("polly.max_chars"),
			Engine:   v.GetString("polly.engine"),
		},
		Bedrock: BedrockConfig{
			BaseModelID: v.GetString("bedrock.base_model_id"),
			MaxTokens:   v.GetInt("bedrock.max_tokens"),
		},
		PDF: PDFConfig{
			DPI: v.GetFloat64("pdf.dpi"),
		},
		Intake: IntakeConfig{
			MaxPDFBytes:  v.GetInt("intake.max_pdf_bytes"),
			MaxTextChars: v.GetInt("intake.max_text_chars"),
			MaxPages:     v.GetInt("intake.max_pages"),
		},
		Jobs: JobsConfig{
			TTLHours: v.GetInt("jobs.ttl_hours"),
		},
		Synthesis: SynthesisConfig{
			ConcatChunks: v.GetBool("synthesis.concat_chunks"),
		},
		Queue: QueueConfig{
			Concurrency: v.GetInt("queue.concurrency"),
			Mode:        v.GetString("queue.mode"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
