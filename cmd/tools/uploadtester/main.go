package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-interview/backend/internal/config"
	"github.com/zhouzirui/z-interview/backend/internal/logging"
	model "github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/service/persist"
	"github.com/zhouzirui/z-interview/backend/internal/service/storage"
)

func main() {
	logging.Setup(config.LogConfig{Level: "debug"})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.LoadStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}
	if !cfg.Enabled() {
		log.Fatal().Msg("Google Drive 未启用，请先配置 GOOGLE_SERVICE_ACCOUNT_FILE 或 GOOGLE_SERVICE_ACCOUNT_JSON")
	}

	mode := flag.String("mode", "", "测试模式: upload 或 transcript")
	filePath := flag.String("file", "", "upload 模式下要上传的本地文件")
	name := flag.String("name", "", "远端文件名，默认使用本地文件名")
	user := flag.String("user", "uploadtester", "transcript 模式下使用的用户名")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "upload" && *mode != "transcript" {
		flag.Usage()
		log.Fatal().Msg("请通过 -mode=upload 或 -mode=transcript 指定测试模式")
	}

	drive := storage.NewDrive(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "upload":
		runUpload(ctx, drive, *filePath, *name)
	case "transcript":
		runTranscript(ctx, drive, cfg, *user)
	}
}

func runUpload(ctx context.Context, drive *storage.Drive, filePath, name string) {
	if filePath == "" {
		log.Fatal().Msg("upload 模式需要通过 -file 指定文件路径")
	}
	if name == "" {
		name = filepath.Base(filePath)
	}

	log.Info().Str("file", filePath).Str("name", name).Msg("开始上传")
	link, err := drive.Upload(ctx, filePath, name)
	if err != nil {
		log.Fatal().Err(err).Msg("上传失败")
	}
	log.Info().Str("link", link).Msg("上传成功")
}

// runTranscript 走一遍完整的最终保存流程：本地写入、确认、上传。
func runTranscript(ctx context.Context, drive *storage.Drive, cfg config.StorageConfig, user string) {
	root, err := os.MkdirTemp("", "uploadtester-*")
	if err != nil {
		log.Fatal().Err(err).Msg("创建临时目录失败")
	}
	defer os.RemoveAll(root)

	dirs := persist.Dirs{
		Transcripts: filepath.Join(root, "transcripts"),
		Times:       filepath.Join(root, "times"),
		Backups:     filepath.Join(root, "backups"),
	}
	writer := persist.NewWriter(dirs, drive, persist.Options{UploadTimeFile: cfg.UploadTimeFile})

	session := model.Session{
		ID:        fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		Username:  user,
		StartTime: time.Now().UTC().Add(-3 * time.Minute),
		State:     model.StateCompleted,
	}
	session.Append(model.RoleAssistant, "Could you briefly describe your current role?")
	session.Append(model.RoleUser, "I run the data team.")
	session.Append(model.RoleAssistant, "Thank you for participating, the interview concludes here.")

	art, err := writer.SaveConfirmed(ctx, persist.SnapshotOf(&session), persist.RetryPolicy{Attempts: 3})
	if err != nil {
		log.Fatal().Err(err).Msg("保存失败")
	}
	if art.Link == "" {
		log.Fatal().Str("transcript", art.TranscriptPath).Msg("本地保存成功，但上传失败，详见上方日志")
	}
	log.Info().Str("link", art.Link).Str("user", user).Msg("转写上传成功")
}
