package listener

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"
)

// 目录形式 keystore 中的文件名
const (
	CertFile = "cert.pem"
	KeyFile  = "key.pem"
)

// LoadTLSConfig 读取 keystore 生成 TLS 配置
// keystore 为目录时读取其中的 cert.pem 与 key.pem，否则按 PKCS#12 文件用 password 解密
func LoadTLSConfig(keystore, password string) (*tls.Config, error) {
	if keystore == "" {
		return nil, fmt.Errorf("no ssl keystore configured")
	}

	info, err := os.Stat(keystore)
	if err != nil {
		return nil, fmt.Errorf("cannot access ssl keystore %s: %w", keystore, err)
	}

	var cert tls.Certificate
	if info.IsDir() {
		cert, err = tls.LoadX509KeyPair(filepath.Join(keystore, CertFile), filepath.Join(keystore, KeyFile))
		if err != nil {
			return nil, fmt.Errorf("cannot load key pair from %s: %w", keystore, err)
		}
	} else {
		cert, err = loadPKCS12(keystore, password)
		if err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadPKCS12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cannot read keystore %s: %w", path, err)
	}

	key, leaf, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cannot decode keystore %s: %w", path, err)
	}

	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// certPool 由 keystore 证书构建信任池（测试与客户端使用）
func certPool(cfg *tls.Config) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, c := range cfg.Certificates {
		for _, der := range c.Certificate {
			parsed, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, err
			}
			pool.AddCert(parsed)
		}
	}
	return pool, nil
}

// CertPool 返回 keystore 的证书信任池
func CertPool(keystore, password string) (*x509.CertPool, error) {
	cfg, err := LoadTLSConfig(keystore, password)
	if err != nil {
		return nil, err
	}
	return certPool(cfg)
}
