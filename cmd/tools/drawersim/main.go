package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/chat-drawer/backend/internal/config"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
	"github.com/zhouzirui/chat-drawer/backend/internal/scheduler"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/assistant"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/drawer"
	"github.com/zhouzirui/chat-drawer/backend/internal/service/recording"
)

const defaultScript = "text:你好;wait:3s;voice:3s;wait:3s;cancel:2s;recommend"

const pressY = 600.0

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	personaID := flag.String("persona", cfg.Assistant.Persona, "助手 persona ID")
	seed := flag.Uint64("seed", cfg.Assistant.Seed, "随机种子，0 表示使用当前时间")
	cardProb := flag.Float64("card-prob", cfg.Assistant.CardProbability, "回复为卡片的概率")
	minDelay := flag.Duration("min-delay", cfg.Assistant.MinDelay, "最短回复延迟")
	maxDelay := flag.Duration("max-delay", cfg.Assistant.MaxDelay, "最长回复延迟")
	deny := flag.Bool("deny-mic", cfg.Recording.DenyMicrophone, "模拟拒绝麦克风权限")
	script := flag.String("script", defaultScript, "以分号分隔的动作: text:<内容> voice:<时长> cancel:<时长> recommend wait:<时长>")

	flag.Parse()

	steps, err := parseScript(*script)
	if err != nil {
		flag.Usage()
		log.Fatalf("脚本解析失败: %v", err)
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	clock := scheduler.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drawers := drawer.NewService(persona.NewMemoryStore(persona.Seed()),
		drawer.WithScheduler(clock),
		drawer.WithMicrophone(recording.NewMockMicrophone(*deny)),
		drawer.WithStrategyOptions(
			assistant.WithSeed(*seed),
			assistant.WithDelayRange(*minDelay, *maxDelay),
			assistant.WithCardProbability(*cardProb),
		),
		drawer.WithRecordingOptions(
			recording.WithCancelThreshold(cfg.Recording.CancelThreshold),
			recording.WithTickInterval(cfg.Recording.TickInterval),
		),
	)
	defer drawers.Close()

	panel, err := drawers.CreateSession(context.Background(), *personaID)
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}

	log.Printf("开始模拟: session=%s persona=%s seed=%d steps=%d", panel.ID(), *personaID, *seed, len(steps))

	sim := &simulation{panel: panel, clock: clock, threshold: cfg.Recording.CancelThreshold}
	for _, s := range steps {
		sim.run(s)
	}

	// 等待最后一条回复
	if panel.Session().IsTyping() {
		clock.Advance(*maxDelay)
	}

	printTimeline(panel.ChatSnapshot())
}

type simulation struct {
	panel     *drawer.Panel
	clock     *scheduler.Manual
	threshold float64
}

func (s *simulation) run(st step) {
	switch st.kind {
	case stepText:
		if _, ok := s.panel.Session().Send(st.text, chat.TypeText); !ok {
			log.Printf("文本消息被忽略: %q", st.text)
		}
	case stepRecommend:
		s.panel.Session().RequestRecommendation()
	case stepWait:
		s.clock.Advance(st.duration)
	case stepVoice, stepCancel:
		s.record(st)
	}
}

func (s *simulation) record(st step) {
	if err := s.panel.PressRecord(context.Background(), pressY); err != nil {
		log.Printf("录音未开始: %v", err)
		return
	}
	if !s.panel.RecordingSnapshot().State.Recording() {
		log.Printf("助手正在输入，录音按钮不可用")
		return
	}

	s.clock.Advance(st.duration)
	if st.kind == stepCancel {
		s.panel.MovePointer(pressY - s.threshold - 10)
	}

	release, _ := s.panel.ReleaseRecord()
	log.Printf("录音结束: outcome=%s seconds=%d", release.Result.Outcome, release.Result.Seconds)
}

func printTimeline(snap chat.Snapshot) {
	fmt.Fprintf(os.Stdout, "session %s (typing=%v)\n", snap.SessionID, snap.IsTyping)
	for i, msg := range snap.Messages {
		line := msg.Content
		if msg.Card != nil {
			labels := make([]string, 0, len(msg.Card.Actions))
			for _, a := range msg.Card.Actions {
				labels = append(labels, a.Label)
			}
			line = fmt.Sprintf("%s [%s: %s]", line, msg.Card.Title, strings.Join(labels, " / "))
		}
		fmt.Fprintf(os.Stdout, "%2d %s %-9s %-5s %s\n", i+1, msg.Timestamp.Format("15:04:05"), msg.Role, msg.Type, strings.TrimSpace(line))
	}
}
