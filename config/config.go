package config

import (
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	// Non-secret defaults (hardcoded in code as requested)
	defaultAPIID                     int32  = 0
	defaultLogChannelID               int64  = 0
	defaultStoreChannelID             int64  = 0
	defaultDev                        bool   = false
	defaultLogLevel                   string = "info"
	defaultPort                       int    = 8080
	defaultStatusPort                 int    = 9090
	defaultHost                       string = ""
	defaultUseSessionFile             bool   = true
	defaultUsePublicIP                bool   = false
	defaultWorkerStartTimeoutSeconds  int    = 120

	// Engine tunables, named and defaulted per SPEC_FULL.md §6.
	defaultCleanIntervalSeconds int = 1800
	defaultChunkSizeBytes       int = 1_048_576
	defaultAuthRetryLimit       int = 3
	defaultAuthSettleDelayMS    int = 1000

	// defaultHomeDC is the datacenter gotd/td dials by default (Amsterdam,
	// DC 2) absent a prior session file pinning a worker to another DC.
	// Nothing in gotgproto's public surface reports which DC a connected
	// client actually landed on, so the Session Pool is told once at
	// startup rather than asking the client.
	defaultHomeDC int = 2
)

var ValueOf = &config{
	ApiID:                     defaultAPIID,
	LogChannelID:              defaultLogChannelID,
	StoreChannelID:            defaultStoreChannelID,
	Dev:                       defaultDev,
	LogLevel:                  defaultLogLevel,
	Port:                      defaultPort,
	StatusPort:                defaultStatusPort,
	Host:                      defaultHost,
	UseSessionFile:            defaultUseSessionFile,
	UsePublicIP:               defaultUsePublicIP,
	WorkerStartTimeoutSeconds: defaultWorkerStartTimeoutSeconds,
	CleanIntervalSeconds:      defaultCleanIntervalSeconds,
	ChunkSizeBytes:            defaultChunkSizeBytes,
	AuthRetryLimit:            defaultAuthRetryLimit,
	AuthSettleDelayMS:         defaultAuthSettleDelayMS,
	HomeDC:                    defaultHomeDC,
}

type allowedUsers []int64

func (au *allowedUsers) Decode(value string) error {
	if value == "" {
		return nil
	}
	ids := strings.Split(string(value), ",")
	for _, id := range ids {
		idInt, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return err
		}
		*au = append(*au, idInt)
	}
	return nil
}

type config struct {
	ApiID                     int32        `envconfig:"API_ID" required:"true"`
	ApiHash                   string       `envconfig:"API_HASH" required:"true"`
	BotToken                  string       `envconfig:"BOT_TOKEN" required:"true"`
	LogChannelID              int64        `envconfig:"LOG_CHANNEL" required:"true"`
	// StoreChannelID is the MsgStore channel the Location Resolver reads
	// from (spec.md §6 store_channel_id).
	StoreChannelID            int64        `envconfig:"STORE_CHANNEL_ID"`
	Dev                       bool         `envconfig:"DEV" default:"false"`
	LogLevel                  string       `envconfig:"LOG_LEVEL" default:"info"`
	Port                      int          `envconfig:"PORT" default:"8080"`
	StatusPort                int          `envconfig:"STATUS_PORT" default:"9090"`
	Host                      string       `envconfig:"HOST" default:""`
	UseSessionFile            bool         `envconfig:"USE_SESSION_FILE" default:"true"`
	UserSession               string       `envconfig:"USER_SESSION"`
	UsePublicIP               bool         `envconfig:"USE_PUBLIC_IP" default:"false"`
	AllowedUsers              allowedUsers `envconfig:"ALLOWED_USERS"`
	WorkerStartTimeoutSeconds int          `envconfig:"WORKER_START_TIMEOUT_SECONDS" default:"120"`
	MultiTokens               []string

	// Engine tunables (spec.md §6 "Configuration").
	CleanIntervalSeconds int `envconfig:"CLEAN_INTERVAL_SECONDS" default:"1800"`
	ChunkSizeBytes       int `envconfig:"CHUNK_SIZE_BYTES" default:"1048576"`
	AuthRetryLimit       int `envconfig:"AUTH_RETRY_LIMIT" default:"3"`
	AuthSettleDelayMS    int `envconfig:"AUTH_SETTLE_DELAY_MS" default:"1000"`
	// HomeDC is the datacenter every worker's home client is assumed to
	// have connected to. See defaultHomeDC.
	HomeDC int `envconfig:"HOME_DC" default:"2"`
}

// CleanInterval, ChunkSize and AuthSettleDelay convert the raw config ints
// into the time.Duration / int64 shapes the engine's constituent packages
// actually want.
func (c *config) CleanInterval() time.Duration {
	return time.Duration(c.CleanIntervalSeconds) * time.Second
}

func (c *config) ChunkSize() int64 {
	return int64(c.ChunkSizeBytes)
}

func (c *config) AuthSettleDelay() time.Duration {
	return time.Duration(c.AuthSettleDelayMS) * time.Millisecond
}

var botTokenRegex = regexp.MustCompile(`MULTI\_TOKEN\d+=(.*)`)

func (c *config) loadFromEnvFile(log *zap.Logger) {
	envPath := filepath.Clean("gateway.env")
	log.Sugar().Infof("Trying to load ENV vars from %s", envPath)
	err := godotenv.Load(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Sugar().Errorf("ENV file not found: %s", envPath)
			log.Sugar().Info("Please create gateway.env file")
			log.Sugar().Info("Please ignore this message if you are hosting it in a service like Heroku or other alternatives.")
		} else {
			log.Fatal("Unknown error while parsing env file.", zap.Error(err))
		}
	}
}

func SetFlagsFromConfig(cmd *cobra.Command) {
	cmd.Flags().Int32("api-id", ValueOf.ApiID, "Telegram API ID")
	cmd.Flags().String("api-hash", ValueOf.ApiHash, "Telegram API Hash")
	cmd.Flags().String("bot-token", ValueOf.BotToken, "Telegram Bot Token")
	cmd.Flags().Int64("log-channel", ValueOf.LogChannelID, "Telegram Log Channel ID")
	cmd.Flags().Int64("store-channel", ValueOf.StoreChannelID, "MsgStore channel ID the resolver reads from")
	cmd.Flags().Bool("dev", ValueOf.Dev, "Enable development mode")
	cmd.Flags().IntP("port", "p", ValueOf.Port, "Server port")
	cmd.Flags().String("host", ValueOf.Host, "Server host that will be included in links")
	cmd.Flags().Bool("use-session-file", ValueOf.UseSessionFile, "Use session files")
	cmd.Flags().String("user-session", ValueOf.UserSession, "Pyrogram-style user session")
	cmd.Flags().Bool("use-public-ip", ValueOf.UsePublicIP, "Use public IP instead of local IP")
	cmd.Flags().String("multi-token-txt-file", "", "Multi token txt file (Not implemented)")
}

func (c *config) loadConfigFromArgs(log *zap.Logger, cmd *cobra.Command) {
	if cmd.Flags().Changed("api-id") {
		apiID, _ := cmd.Flags().GetInt32("api-id")
		os.Setenv("API_ID", strconv.Itoa(int(apiID)))
	}
	if cmd.Flags().Changed("api-hash") {
		apiHash, _ := cmd.Flags().GetString("api-hash")
		os.Setenv("API_HASH", apiHash)
	}
	if cmd.Flags().Changed("bot-token") {
		botToken, _ := cmd.Flags().GetString("bot-token")
		os.Setenv("BOT_TOKEN", botToken)
	}
	if cmd.Flags().Changed("log-channel") {
		logChannelID, _ := cmd.Flags().GetInt64("log-channel")
		os.Setenv("LOG_CHANNEL", strconv.FormatInt(logChannelID, 10))
	}
	if cmd.Flags().Changed("store-channel") {
		storeChannelID, _ := cmd.Flags().GetInt64("store-channel")
		os.Setenv("STORE_CHANNEL_ID", strconv.FormatInt(storeChannelID, 10))
	}
	if cmd.Flags().Changed("dev") {
		dev, _ := cmd.Flags().GetBool("dev")
		os.Setenv("DEV", strconv.FormatBool(dev))
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		os.Setenv("PORT", strconv.Itoa(port))
	}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		os.Setenv("HOST", host)
	}
	if cmd.Flags().Changed("use-session-file") {
		useSessionFile, _ := cmd.Flags().GetBool("use-session-file")
		os.Setenv("USE_SESSION_FILE", strconv.FormatBool(useSessionFile))
	}
	if cmd.Flags().Changed("user-session") {
		userSession, _ := cmd.Flags().GetString("user-session")
		os.Setenv("USER_SESSION", userSession)
	}
	if cmd.Flags().Changed("use-public-ip") {
		usePublicIP, _ := cmd.Flags().GetBool("use-public-ip")
		os.Setenv("USE_PUBLIC_IP", strconv.FormatBool(usePublicIP))
	}

	multiTokens, _ := cmd.Flags().GetString("multi-token-txt-file")
	if multiTokens != "" {
		log.Sugar().Warn("multi-token-txt-file is not implemented yet")
	}
}

func (c *config) loadMultiTokensFromEnv() {
	c.MultiTokens = c.MultiTokens[:0]
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "MULTI_TOKEN") {
			continue
		}
		match := botTokenRegex.FindStringSubmatch(env)
		if len(match) != 2 {
			continue
		}
		token := strings.TrimSpace(match[1])
		if token == "" {
			continue
		}
		c.MultiTokens = append(c.MultiTokens, token)
	}
}

func (c *config) setupEnvVars(log *zap.Logger, cmd *cobra.Command) {
	c.loadFromEnvFile(log)
	c.loadConfigFromArgs(log, cmd)
	err := envconfig.Process("", c)
	if err != nil {
		log.Fatal("Error while parsing env variables", zap.Error(err))
	}
	c.loadMultiTokensFromEnv()

	var ipBlocked bool
	ip, err := getIP(c.UsePublicIP)
	if err != nil {
		log.Error("Error while getting IP", zap.Error(err))
		ipBlocked = true
	}
	if c.Host == "" {
		c.Host = "http://" + ip + ":" + strconv.Itoa(c.Port)
		if c.UsePublicIP {
			if ipBlocked {
				log.Sugar().Warn("Can't get public IP, using local IP")
			} else {
				log.Sugar().Warn("You are using a public IP, please be aware of the security risks while exposing your IP to the internet.")
				log.Sugar().Warn("Use 'HOST' variable to set a domain name")
			}
		}
		log.Sugar().Info("HOST not set, automatically set to " + c.Host)
	}
}

func Load(log *zap.Logger, cmd *cobra.Command) {
	log = log.Named("Config")
	defer log.Info("Loaded config")
	ValueOf.setupEnvVars(log, cmd)
	ValueOf.LogChannelID = int64(stripInt(log, int(ValueOf.LogChannelID)))
	if ValueOf.StoreChannelID != 0 {
		ValueOf.StoreChannelID = int64(stripInt(log, int(ValueOf.StoreChannelID)))
		log.Sugar().Infof("STORE_CHANNEL_ID configured: %d", ValueOf.StoreChannelID)
	} else {
		log.Sugar().Warn("STORE_CHANNEL_ID not set. Resolve() will not work.")
	}
	if ValueOf.CleanIntervalSeconds <= 0 {
		log.Sugar().Info("CLEAN_INTERVAL_SECONDS must be positive, defaulting to 1800")
		ValueOf.CleanIntervalSeconds = defaultCleanIntervalSeconds
	}
	if ValueOf.ChunkSizeBytes <= 0 {
		log.Sugar().Info("CHUNK_SIZE_BYTES must be positive, defaulting to 1048576")
		ValueOf.ChunkSizeBytes = defaultChunkSizeBytes
	}
	if ValueOf.AuthRetryLimit <= 0 {
		ValueOf.AuthRetryLimit = defaultAuthRetryLimit
	}
	if ValueOf.AuthSettleDelayMS <= 0 {
		ValueOf.AuthSettleDelayMS = defaultAuthSettleDelayMS
	}
	if ValueOf.HomeDC <= 0 {
		ValueOf.HomeDC = defaultHomeDC
	}
}

func getIP(public bool) (string, error) {
	var ip string
	var err error
	if public {
		ip, err = GetPublicIP()
	} else {
		ip, err = getInternalIP()
	}
	if ip == "" {
		ip = "localhost"
	}
	if err != nil {
		return "localhost", err
	}
	return ip, nil
}

// https://stackoverflow.com/a/23558495/15807350
func getInternalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.New("no internet connection")
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func GetPublicIP() (string, error) {
	resp, err := http.Get("https://api.ipify.org?format=text")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	ip, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if !checkIfIpAccessible(string(ip)) {
		return string(ip), errors.New("PORT is blocked by firewall")
	}
	return string(ip), nil
}

func checkIfIpAccessible(ip string) bool {
	conn, err := net.Dial("tcp", ip+":80")
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

func stripInt(log *zap.Logger, a int) int {
	strA := strconv.Itoa(abs(a))
	lastDigits := strings.Replace(strA, "100", "", 1)
	result, err := strconv.Atoi(lastDigits)
	if err != nil {
		log.Sugar().Fatalln(err)
		return 0
	}
	return result
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
