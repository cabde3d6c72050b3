// cmd/xhslogin/main.go
//
// 登录引导工具：用 webhook 同一个浏览器配置目录打开创作平台登录页，
// 操作者扫码登录后按回车退出，登录态留在配置目录里供 webhook 复用。
// 必须在有显示服务的机器上运行，且运行期间 webhook 不能同时开浏览器。
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/qironman/zenapp/internal/browser"
	"github.com/qironman/zenapp/internal/config"
)

func main() {
	var (
		profileDir = flag.String("profile", "", "浏览器配置目录（默认取 XHS_PROFILE_DIR）")
		loginURL   = flag.String("url", "https://creator.xiaohongshu.com/login", "登录页地址")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *profileDir == "" {
		*profileDir = cfg.ProfileDir
	}

	fmt.Printf("使用配置目录: %s\n", *profileDir)
	fmt.Println("正在启动浏览器...")

	session, err := browser.NewSession(browser.Options{
		ProfileDir:    *profileDir,
		Headless:      false,
		ActionTimeout: 60 * time.Second,
		// 登录必须有窗口给人扫码，无头回退没有意义
		DisableHeadlessFallback: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "启动浏览器失败: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()

	if err := session.Navigate(*loginURL); err != nil {
		fmt.Fprintf(os.Stderr, "打开登录页失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("请在打开的浏览器窗口中扫码登录小红书创作平台。")
	fmt.Println("登录完成后回到这里按回车退出，登录态会保留在配置目录中。")
	fmt.Print("> ")

	bufio.NewReader(os.Stdin).ReadString('\n')

	if loc, err := session.Location(); err == nil {
		fmt.Printf("退出前页面: %s\n", loc)
	}
	fmt.Println("完成。现在可以启动 webhook 服务了。")
}
