package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	DBName   string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ConfigSchema struct {
	Databases struct {
		Master   DBConfig   `yaml:"master"`
		Replicas []DBConfig `yaml:"replicas"`
	} `yaml:"db"`
	Backend struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"backend"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Broker struct {
		Enabled  bool   `yaml:"enabled"`
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"broker"`
	Logs struct {
		Level string `yaml:"level"`
	} `yaml:"logs"`
}

var AppConfig *ConfigSchema

func LoadConfig(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	var conf ConfigSchema
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return err
	}
	applyEnvOverrides(&conf)
	AppConfig = &conf
	return nil
}

// applyEnvOverrides - секреты и адреса можно переопределить через окружение
func applyEnvOverrides(conf *ConfigSchema) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		conf.Databases.Master.Password = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		conf.Databases.Master.Host = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		conf.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			conf.Redis.Port = port
		}
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		conf.Broker.URL = v
		conf.Broker.Enabled = true
	}
}
