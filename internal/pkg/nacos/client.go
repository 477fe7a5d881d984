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
	zlog "github.com/rs/zerolog/log"
)

// Client 封装了 Nacos 命名客户端，只用于服务注册与注销
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// ParseServerConfigs 解析 "ip1:port1,ip2:port2" 格式的地址列表
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	if len(serverConfigs) == 0 {
		return nil, fmt.Errorf("no nacos address in %q", addrs)
	}
	return serverConfigs, nil
}

// NewNacosClient 创建命名客户端
func NewNacosClient(addrs, namespaceID, groupName string) (*Client, error) {
	serverConfigs, err := ParseServerConfigs(addrs)
	if err != nil {
		return nil, err
	}
	if namespaceID == "" {
		zlog.Warn().Msg("⚠️ NACOS_NAMESPACE is not set, using the public namespace")
	}
	if groupName == "" {
		groupName = "DEFAULT_GROUP"
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceID),
	)

	namingClient, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}

	zlog.Info().Str("addrs", addrs).Msg("✅ connected to Nacos")
	return &Client{namingClient: namingClient, groupName: groupName}, nil
}

// RegisterServiceInstance 注册临时实例，心跳断开后自动摘除
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
	zlog.Info().Str("service", serviceName).Str("ip", ip).Int("port", port).Msg("✅ registered to Nacos")
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
	zlog.Info().Str("service", serviceName).Msg("deregistered from Nacos")
	return nil
}

func (c *Client) Close() {
	c.namingClient.CloseClient()
}
