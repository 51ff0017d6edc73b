package i18n

var messages = map[string]map[string]string{
	LocaleZH: {
		"error.bad_request":              "请求参数错误",
		"error.unauthorized":             "未登录或登录已失效",
		"error.forbidden":                "没有权限执行该操作",
		"error.not_found":                "资源不存在",
		"error.internal":                 "服务器内部错误",
		"error.jwt_secret_missing":       "鉴权密钥未配置",
		"error.auth_header_missing":      "缺少 Authorization 请求头",
		"error.auth_header_invalid":      "Authorization 格式错误",
		"error.token_invalid":            "登录凭证无效",
		"error.token_revoked":            "登录凭证已失效，请重新登录",
		"error.user_disabled":            "账号已被禁用",
		"error.service_token_invalid":    "服务令牌无效",
		"error.login_failed":             "用户名或密码错误",
		"error.admin_id_invalid":         "管理员 ID 无效",
		"error.admin_id_type_invalid":    "管理员 ID 类型错误",
		"error.user_id_invalid":          "用户 ID 无效",
		"error.user_id_type_invalid":     "用户 ID 类型错误",
		"error.rate_limited":             "请求过于频繁，请 %d 秒后再试",
		"error.rate_limit_unavailable":   "限流服务暂不可用",
		"error.affiliate_exists":         "推广账户已存在",
		"error.affiliate_not_found":      "推广账户不存在",
		"error.affiliate_code_invalid":   "推广码无效",
		"error.affiliate_suspended":      "推广账户已停用",
		"error.affiliate_status_invalid": "推广账户状态无效",
		"error.referral_exists":          "该用户已被推荐",
		"error.referral_self":            "不能推荐自己",
		"error.referral_not_found":       "推荐记录不存在",
		"error.referral_converted":       "推荐记录已转化",
		"error.conversion_amount":        "订阅金额无效",
		"error.payment_info_invalid":     "收款信息无效",
		"error.email_invalid":            "邮箱格式错误",
		"error.payout_not_found":         "结算单不存在",
		"error.payout_below_threshold":   "待结算金额未达到最低结算额度，还差 %s",
		"error.payout_nothing_pending":   "暂无可结算金额",
		"error.payout_destination":       "未配置对应的收款方式",
		"error.payout_method_invalid":    "结算方式无效",
		"error.payout_in_flight":         "已有处理中的结算单",
		"error.payout_conflict":          "结算单状态已变更，请刷新后重试",
		"error.payout_status_invalid":    "结算单状态不允许该操作",
		"error.payout_no_batch":          "结算单没有网关批次",
		"error.payout_gateway_failed":    "付款网关请求失败",
		"error.payout_run_in_progress":   "已有批量结算正在运行",
		"error.payout_run_not_found":     "批量结算记录不存在",
		"error.role_unknown":             "角色不存在",
		"error.super_admin_required":     "仅超级管理员可执行该操作",
	},
	LocaleEN: {
		"error.bad_request":              "Invalid request parameters",
		"error.unauthorized":             "Not signed in or session expired",
		"error.forbidden":                "You are not allowed to perform this action",
		"error.not_found":                "Resource not found",
		"error.internal":                 "Internal server error",
		"error.jwt_secret_missing":       "Authentication secret is not configured",
		"error.auth_header_missing":      "Missing Authorization header",
		"error.auth_header_invalid":      "Malformed Authorization header",
		"error.token_invalid":            "Invalid token",
		"error.token_revoked":            "Token has been revoked, please sign in again",
		"error.user_disabled":            "Account disabled",
		"error.service_token_invalid":    "Invalid service token",
		"error.login_failed":             "Invalid username or password",
		"error.admin_id_invalid":         "Invalid admin id",
		"error.admin_id_type_invalid":    "Unexpected admin id type",
		"error.user_id_invalid":          "Invalid user id",
		"error.user_id_type_invalid":     "Unexpected user id type",
		"error.rate_limited":             "Too many requests, retry in %d seconds",
		"error.rate_limit_unavailable":   "Rate limiter unavailable",
		"error.affiliate_exists":         "Affiliate account already exists",
		"error.affiliate_not_found":      "Affiliate account not found",
		"error.affiliate_code_invalid":   "Invalid affiliate code",
		"error.affiliate_suspended":      "Affiliate account is suspended",
		"error.affiliate_status_invalid": "Invalid affiliate status",
		"error.referral_exists":          "This user has already been referred",
		"error.referral_self":            "You cannot refer yourself",
		"error.referral_not_found":       "Referral not found",
		"error.referral_converted":       "Referral already converted",
		"error.conversion_amount":        "Invalid subscription amount",
		"error.payment_info_invalid":     "Invalid payment details",
		"error.email_invalid":            "Invalid email address",
		"error.payout_not_found":         "Payout not found",
		"error.payout_below_threshold":   "Pending earnings are below the minimum payout, %s to go",
		"error.payout_nothing_pending":   "No pending earnings to pay out",
		"error.payout_destination":       "No payout destination configured for this method",
		"error.payout_method_invalid":    "Invalid payout method",
		"error.payout_in_flight":         "Another payout is already being processed",
		"error.payout_conflict":          "Payout changed concurrently, refresh and retry",
		"error.payout_status_invalid":    "Payout status does not allow this action",
		"error.payout_no_batch":          "Payout has no gateway batch",
		"error.payout_gateway_failed":    "Payment gateway request failed",
		"error.payout_run_in_progress":   "A payout run is already in progress",
		"error.payout_run_not_found":     "Payout run not found",
		"error.role_unknown":             "Unknown role",
		"error.super_admin_required":     "Only super admins can perform this action",
	},
}
