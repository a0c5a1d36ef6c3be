package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/spf13/cobra"
)

func (a *app) loginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "登录防火墙管理后台",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				// 未通过参数提供时从标准输入读取一行
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return api.ValidationError("请输入密码")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			sess, err := a.shell.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if a.out.isJSON() {
				return a.out.json(map[string]interface{}{
					"username":         sess.Username,
					"firewall_enabled": a.shell.FirewallEnabled(),
				})
			}
			a.out.line("已登录: %s", sess.Username)
			a.out.line("防火墙: %s", fmtEnabled(a.shell.FirewallEnabled()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "admin", "用户名")
	cmd.Flags().StringVarP(&password, "password", "p", "", "密码，为空时从标准输入读取")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "退出登录并清除保存的令牌",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.shell.Logout(); err != nil {
				return err
			}
			return a.out.message("已退出登录")
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "显示当前用户信息",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			user, err := a.shell.Client().Users.GetProfile(cmd.Context())
			if err != nil {
				return err
			}
			return a.out.result(user, []string{"ID", "USERNAME", "API KEY", "LAST LOGIN"}, func() [][]string {
				return [][]string{{
					strconv.FormatInt(user.ID, 10),
					user.Username,
					orDash(user.APIKey),
					fmtTime(user.LastLogin),
				}}
			})
		},
	}
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "个人设置",
	}

	var update api.ProfileUpdate
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "修改密码或重新生成API密钥",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			user, err := a.shell.UpdateProfile(cmd.Context(), update)
			if err != nil {
				return err
			}
			if update.ChangesPassword() {
				return a.out.message("密码已修改，请重新登录")
			}
			if a.out.isJSON() {
				return a.out.json(user)
			}
			a.out.line("个人设置已更新")
			if update.RegenerateAPIKey {
				a.out.line("新的API密钥: %s", user.APIKey)
			}
			return nil
		},
	}
	updateCmd.Flags().StringVar(&update.Password, "password", "", "新密码，至少6个字符")
	updateCmd.Flags().StringVar(&update.ConfirmPassword, "confirm-password", "", "确认新密码")
	updateCmd.Flags().BoolVar(&update.RegenerateAPIKey, "regenerate-api-key", false, "重新生成API密钥")

	cmd.AddCommand(updateCmd)
	return cmd
}

func (a *app) firewallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firewall",
		Short: "全局防火墙开关",
	}

	show := &cobra.Command{
		Use:   "status",
		Short: "显示防火墙是否启用",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			return a.printFirewall()
		},
	}

	set := func(use, short string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.authed(cmd.Context()); err != nil {
					return err
				}
				if err := a.shell.SetFirewall(cmd.Context(), enabled); err != nil {
					return err
				}
				return a.printFirewall()
			},
		}
	}

	toggle := &cobra.Command{
		Use:   "toggle",
		Short: "切换防火墙开关",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authed(cmd.Context()); err != nil {
				return err
			}
			if _, err := a.shell.ToggleFirewall(cmd.Context()); err != nil {
				return err
			}
			return a.printFirewall()
		},
	}

	cmd.AddCommand(show, set("enable", "启用防火墙", true), set("disable", "停用防火墙", false), toggle)
	return cmd
}

func (a *app) printFirewall() error {
	enabled := a.shell.FirewallEnabled()
	if a.out.isJSON() {
		return a.out.json(map[string]bool{"enabled": enabled})
	}
	a.out.line(fmt.Sprintf("防火墙: %s", fmtEnabled(enabled)))
	return nil
}
