package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/config"
	"github.com/opendeepwiki/deepresearch/internal/probe"
	"github.com/opendeepwiki/deepresearch/internal/service/chat"
)

func main() {
	klog.InitFlags(nil)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		klog.Warningf("加载 .env 失败: %v", err)
	}
	defaults := config.GetConfig().Probe

	endpoint := flag.String("endpoint", defaults.Endpoint, "websocket chat endpoint")
	mode := flag.String("mode", string(chat.ModeDiagram), "dfd, stride, research or ask")
	prompt := flag.String("prompt", "", "prompt text (a default per mode is used when empty)")
	out := flag.String("out", defaults.OutputDir, "output directory")
	language := flag.String("language", defaults.Language, "response language code")
	model := flag.String("model", "", "model name")
	provider := flag.String("provider", "openai", "model provider")
	repoType := flag.String("type", "github", "repository type")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <repo_url>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Connecting to %s...\n", *endpoint)
	fmt.Println("\n--- Response Start ---")
	result, err := probe.Run(ctx, probe.Options{
		Endpoint:  *endpoint,
		RepoURL:   flag.Arg(0),
		RepoType:  *repoType,
		Mode:      chat.Mode(*mode),
		Prompt:    *prompt,
		OutputDir: *out,
		Language:  *language,
		Provider:  *provider,
		Model:     *model,
	})
	if err != nil {
		fmt.Printf("\nError: %v\n", err)
		if !errors.Is(err, probe.ErrAbnormalClose) {
			fmt.Println("Make sure the server is running on port 8001 (default) or check your configuration.")
		}
		os.Exit(1)
	}
	fmt.Println("\n\n--- Response End ---")
	fmt.Printf("Output written to %s\n", result.Path)
}
