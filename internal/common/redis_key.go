package common

const RedisKeyAnomalyReport = "anomaly:report"
