package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zapflow/zapflow/agent"
	"github.com/zapflow/zapflow/config"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "zapflow", "namespace used in storage")
	cmd.Flags().Int("http-port", 8080, "http port for webhook ingress and rest endpoints")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage")
	cmd.Flags().String("message-log", "messages.log", "file receiving the conversation message log")
	cmd.Flags().Int("message-log-capacity", 1024, "buffered message log records before drops")
	cmd.Flags().Int("send-timeout", 10, "chat api send timeout in seconds")
	cmd.Flags().Int("http-node-timeout", 15, "httpRequest node timeout in seconds")
	cmd.Flags().Int("completion-timeout", 60, "ai completion timeout in seconds")
	cmd.Flags().Int("resume-poll-interval", 1, "delay queue poll interval in seconds")
	cmd.Flags().Int("schedule-poll-interval", 5, "schedule queue poll interval in seconds")
	cmd.Flags().String("openai-key", "", "openai api key")
	cmd.Flags().String("anthropic-key", "", "anthropic api key")
	cmd.Flags().String("gemini-key", "", "gemini api key")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.MessageLogFile = viper.GetString("message-log")
	c.cfg.MessageLogCapacity = viper.GetInt("message-log-capacity")
	c.cfg.SendTimeout = time.Duration(viper.GetInt("send-timeout")) * time.Second
	c.cfg.HttpNodeTimeout = time.Duration(viper.GetInt("http-node-timeout")) * time.Second
	c.cfg.CompletionTimeout = time.Duration(viper.GetInt("completion-timeout")) * time.Second
	c.cfg.ResumePollInterval = viper.GetInt("resume-poll-interval")
	c.cfg.SchedulePollInterval = viper.GetInt("schedule-poll-interval")
	c.cfg.OpenAIKey = viper.GetString("openai-key")
	c.cfg.AnthropicKey = viper.GetString("anthropic-key")
	c.cfg.GeminiKey = viper.GetString("gemini-key")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "zapflow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
