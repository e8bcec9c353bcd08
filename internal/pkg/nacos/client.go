// internal/pkg/nacos/client.go
package nacos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"

	"stockgate/internal/pkg/logger"
)

const defaultGroup = "DEFAULT_GROUP"

// Config 描述 Nacos 注册中心的连接参数
type Config struct {
	ServerAddrs []string
	Namespace   string
	Group       string
}

// Client 封装了 Nacos 命名客户端
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// NewClient 创建命名客户端
func NewClient(cfg Config) (*Client, error) {
	serverConfigs, err := ServerConfigs(cfg.ServerAddrs)
	if err != nil {
		return nil, err
	}
	if cfg.Namespace == "" {
		logger.L().Warn().Msg("⚠️ nacos namespace is not set, using public namespace")
	}
	group := cfg.Group
	if group == "" {
		group = defaultGroup
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(cfg.Namespace),
	)

	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}

	logger.L().Info().Strs("addrs", cfg.ServerAddrs).Msg("✅ Connected to Nacos")
	return &Client{namingClient: namingClient, groupName: group}, nil
}

// ServerConfigs 解析 "host:port" 形式的地址列表
func ServerConfigs(addrs []string) ([]constant.ServerConfig, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no nacos server address configured")
	}
	configs := make([]constant.ServerConfig, 0, len(addrs))
	for _, addr := range addrs {
		host, portStr, ok := strings.Cut(strings.TrimSpace(addr), ":")
		if !ok || host == "" {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", addr)
		}
		configs = append(configs, *constant.NewServerConfig(host, port))
	}
	return configs, nil
}

// RegisterServiceInstance 以临时实例注册，心跳断开后自动摘除
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !success {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	logger.L().Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("✅ Registered to Nacos")
	return nil
}

func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	logger.L().Info().Str("service", serviceName).Msg("ℹ️ Deregistered from Nacos")
	return nil
}

func (c *Client) Close() {
	c.namingClient.CloseClient()
}
