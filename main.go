package main

import (
	"context"
	"encoding/base64"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.fiblab.net/sim/syncer/v3"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/railsim-ai/task"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/config"
	"github.com/tsinghua-fib-lab/railsim-ai/utils/metrics"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"
)

var (
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	// 独立部署：不需要syncer，不向其他服务提供RPC访问
	syncerAddr = flag.String("syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	// 模拟任务名
	job = flag.String("job", "job0", "the name of the whole simulation task")
	// 本程序监听的gRPC地址
	grpcAddr = flag.String("listen", ":51102", "gRPC listening address")
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 运行指标监听地址，为空则不启用
	metricsAddr = flag.String("metrics", "", "prometheus metrics listening address (empty means disabled), e.g. :9100")
	// 存档
	loadPath = flag.String("load", "", "resume train states from this save file")
	loadStep = flag.Int("load.step", 0, "the step at which the save file was written")
	savePath = flag.String("save", "", "write train states to this save file when the run ends")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")
	logFile  = flag.String("log.file", "", "同时写入的日志文件（按大小轮转），为空则只输出到终端")

	log = logrus.WithField("module", "railsim")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	if *logFile != "" {
		w := &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    64, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		defer w.Close()
		logrus.SetOutput(io.MultiWriter(os.Stderr, w))
	}
	// 获取配置
	var c config.Config
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		log.Panicf("config file load err: %v", err)
	}
	log.Infof("%+v", c)

	var collector *metrics.Collector
	if *metricsAddr != "" {
		collector = metrics.NewCollector()
		srv := collector.Serve(*metricsAddr)
		defer srv.Shutdown(context.Background())
	}

	var sidecar *syncer.Sidecar
	if *syncerAddr != "" {
		sidecar = syncer.NewSidecar(task.SelfName, *grpcAddr, *syncerAddr)
	}
	t, err := task.NewContext(*job, c, sidecar, sidecar != nil, collector)
	if err != nil {
		log.Panicf("init task err: %v", err)
	}
	t.Init()
	if *loadPath != "" {
		if err := t.LoadState(*loadPath, int32(*loadStep)); err != nil {
			log.Panicf("load err: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupted, stopping after the current step")
		t.Stop()
	}()

	t.Run()
	if *savePath != "" {
		if err := t.SaveState(*savePath); err != nil {
			log.Errorf("save err: %v", err)
		}
	}
}
